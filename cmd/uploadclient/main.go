package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"media-transcription-pipeline/internal/models"
)

// Log upload progress every 10 MB
const progressEvery = 10 << 20

type countingReader struct {
	r       io.Reader
	total   int64
	nextLog int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.total += int64(n)
	if c.total >= c.nextLog {
		log.Printf("Uploaded %d MB", c.total>>20)
		c.nextLog += progressEvery
	}
	return n, err
}

type wsMessage struct {
	Type  string              `json:"type"`
	Job   *models.JobSnapshot `json:"job,omitempty"`
	Event *struct {
		Seq               int64   `json:"seq"`
		Type              string  `json:"type"`
		Stage             string  `json:"stage"`
		SegmentID         *int    `json:"segmentId"`
		SegmentStatus     string  `json:"segmentStatus"`
		CompletedSegments int     `json:"completedSegments"`
		TotalSegments     int     `json:"totalSegments"`
		ProgressPercent   float64 `json:"progressPercent"`
		ErrorKind         string  `json:"errorKind"`
		Message           string  `json:"message"`
	} `json:"event,omitempty"`
}

func main() {
	mediaFile := flag.String("file", "", "Path to an audio or video file")
	serverAddr := flag.String("server", "http://localhost:8080", "Pipeline HTTP address")
	model := flag.String("model", "", "Transcription model")
	flag.Parse()

	if *mediaFile == "" {
		log.Fatal("-file is required")
	}

	f, err := os.Open(*mediaFile)
	if err != nil {
		log.Fatalf("Failed to open media file: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("Failed to stat media file: %v", err)
	}

	// Stream the multipart body instead of buffering the file.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		if *model != "" {
			_ = mw.WriteField("model", *model)
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(*mediaFile)))
		ct := mime.TypeByExtension(filepath.Ext(*mediaFile))
		if ct == "" {
			ct = "application/octet-stream"
		}
		hdr.Set("Content-Type", ct)
		hdr.Set("Content-Length", fmt.Sprint(info.Size()))
		part, err := mw.CreatePart(hdr)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, &countingReader{r: f, nextLog: progressEvery}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	base := strings.TrimRight(*serverAddr, "/")
	startTime := time.Now()
	resp, err := http.Post(base+"/v1/jobs", mw.FormDataContentType(), pr)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Upload rejected (%d): %s", resp.StatusCode, body)
	}

	var snap models.JobSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		log.Fatalf("Bad response: %v", err)
	}
	log.Printf("Uploaded %s (%d bytes) in %v: jobId=%s", snap.FileName, info.Size(), time.Since(startTime), snap.ID)

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/v1/jobs/" + snap.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to follow job: %v", err)
	}
	defer conn.Close()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Event stream ended: %v", err)
			}
			break
		}
		if ev := msg.Event; ev != nil {
			if ev.SegmentID != nil {
				log.Printf("segment %d %s (%d/%d)", *ev.SegmentID, ev.SegmentStatus, ev.CompletedSegments, ev.TotalSegments)
				continue
			}
			log.Printf("stage=%s progress=%.0f%% %s", ev.Stage, ev.ProgressPercent, ev.Message)
		}
	}

	resp, err = http.Get(base + "/v1/jobs/" + snap.ID)
	if err != nil {
		log.Fatalf("Failed to fetch job: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		log.Fatalf("Bad job response: %v", err)
	}

	if snap.Stage != models.StageCompleted {
		if snap.Error != nil {
			log.Fatalf("Job failed: kind=%s %s", snap.Error.Kind, snap.Error.Message)
		}
		log.Fatalf("Job ended in %s", snap.Stage)
	}
	log.Printf("Job completed in %v: %d segments", time.Since(startTime), snap.TotalSegments)
	fmt.Println(snap.Transcript)
}
