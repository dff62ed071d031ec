package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

// HTTPStore talks to an object store with plain PUT/GET/DELETE.
type HTTPStore struct {
	baseURL  string
	token    string
	maxBytes int64
	client   *http.Client
}

// NewHTTPStore creates a store rooted at baseURL. token, when set, is sent
// as a bearer credential.
func NewHTTPStore(baseURL, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		maxBytes: models.MaxSegmentBytes,
		client:   client,
	}
}

// Put implements Store.
func (s *HTTPStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	target := s.baseURL + "/" + escapePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", models.NewError(models.KindValidation, "blob put", "invalid blob name", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "audio/mpeg")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", transportError("blob put", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", statusError("blob put", resp)
	}

	// Stores may answer with the canonical URL of the object.
	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := req.URL.Parse(loc); err == nil {
			return u.String(), nil
		}
	}
	return target, nil
}

// Get implements Store. Bodies over the segment cap are rejected.
func (s *HTTPStore) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, models.NewError(models.KindValidation, "blob get", "blob URL is required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.NewError(models.KindValidation, "blob get", "malformed blob URL", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError("blob get", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, statusError("blob get", resp)
	}
	if resp.ContentLength > s.maxBytes {
		return nil, models.NewError(models.KindOversize, "blob get",
			fmt.Sprintf("blob is %d bytes, above the %d byte cap", resp.ContentLength, s.maxBytes), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, transportError("blob get", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, models.NewError(models.KindOversize, "blob get",
			fmt.Sprintf("blob exceeds the %d byte cap", s.maxBytes), nil)
	}
	return data, nil
}

// Delete implements Store.
func (s *HTTPStore) Delete(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, rawURL, nil)
	if err != nil {
		return models.NewError(models.KindValidation, "blob delete", "malformed blob URL", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return transportError("blob delete", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode/100 == 2 {
		return nil
	}
	return statusError("blob delete", resp)
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("store answered %d", resp.StatusCode)
	if b := strings.TrimSpace(string(body)); b != "" {
		msg += ": " + b
	}
	var cause error
	if resp.StatusCode == http.StatusNotFound {
		cause = ErrNotFound
	}
	e := models.NewError(stt.KindForHTTPStatus(resp.StatusCode), op, msg, cause)
	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.NewError(models.KindNetwork, op, "store unreachable", err)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func escapePath(name string) string {
	parts := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
