package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"media-transcription-pipeline/internal/models"
)

// MemoryStore keeps blobs in process. With Handler mounted it also serves
// them over HTTP, which lets an HTTPStore use it as a backend.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryStore creates an empty store whose URLs start with baseURL.
// Empty baseURL yields mem:// URLs.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "mem://"
	} else {
		baseURL = strings.TrimRight(baseURL, "/") + "/"
	}
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", models.NewError(models.KindValidation, "blob put", "blob name is required", nil)
	}
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return m.baseURL + key, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := m.key(url)
	if !ok {
		return nil, models.NewError(models.KindValidation, "blob get",
			fmt.Sprintf("URL %q is not served by this store", url), nil)
	}
	m.mu.RLock()
	data, found := m.objects[key]
	m.mu.RUnlock()
	if !found {
		return nil, models.NewError(models.KindValidation, "blob get", "no blob at "+url, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key, ok := m.key(url); ok {
		m.mu.Lock()
		delete(m.objects, key)
		m.mu.Unlock()
	}
	return nil
}

// Keys returns the stored object names, sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) key(url string) (string, bool) {
	if !strings.HasPrefix(url, m.baseURL) {
		return "", false
	}
	key := strings.TrimPrefix(url, m.baseURL)
	return key, key != ""
}

// Handler serves the store under prefix with PUT, GET and DELETE.
func (m *MemoryStore) Handler(prefix string) http.Handler {
	prefix = "/" + strings.Trim(prefix, "/")
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimLeft(r.URL.Path, "/")
		if key == "" {
			http.Error(w, "missing object name", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(io.LimitReader(r.Body, models.MaxSegmentBytes+1))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if int64(len(data)) > models.MaxSegmentBytes {
				http.Error(w, "object too large", http.StatusRequestEntityTooLarge)
				return
			}
			m.mu.Lock()
			m.objects[key] = data
			m.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			m.mu.RLock()
			data, ok := m.objects[key]
			m.mu.RUnlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write(data)
		case http.MethodDelete:
			m.mu.Lock()
			delete(m.objects, key)
			m.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
}
