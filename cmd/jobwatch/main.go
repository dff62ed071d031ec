// Job Watch - follows pipeline events on Kafka and prints them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"media-transcription-pipeline/internal/models"
)

// envelope holds the union of the status, segment and final payloads.
type envelope struct {
	EventType         string  `json:"eventType"`
	JobID             string  `json:"jobId"`
	Stage             string  `json:"stage"`
	SegmentID         *int    `json:"segmentId"`
	Status            string  `json:"status"`
	CompletedSegments int     `json:"completedSegments"`
	TotalSegments     int     `json:"totalSegments"`
	ProgressPercent   float64 `json:"progressPercent"`
	Text              string  `json:"text"`
	Error             string  `json:"error"`
	ErrorKind         string  `json:"errorKind"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func consume(ctx context.Context, brokers []string, topic, jobID string, lookback time.Duration) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-lookback)); err != nil {
		log.Printf("Cannot seek %s: %v", topic, err)
	}
	log.Printf("Consuming from Kafka topic: %s partition 0 (last %v)", topic, lookback)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}
		if jobID != "" && string(msg.Key) != jobID {
			continue
		}

		var ev envelope
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}
		log.Print(describe(ev))
	}
}

func describe(ev envelope) string {
	var b strings.Builder
	b.WriteString(ev.JobID)
	switch ev.EventType {
	case models.EventTypeJobStatus:
		b.WriteString(" stage=" + ev.Stage)
		if ev.TotalSegments > 0 {
			b.WriteString(" segments=" + strconv.Itoa(ev.CompletedSegments) + "/" + strconv.Itoa(ev.TotalSegments))
		}
		if ev.ErrorKind != "" {
			b.WriteString(" error=" + ev.ErrorKind + " " + ev.Error)
		}
	case models.EventTypeSegmentTranscript:
		if ev.SegmentID != nil {
			b.WriteString(" segment=" + strconv.Itoa(*ev.SegmentID))
		}
		b.WriteString(" " + ev.Status)
		if ev.Text != "" {
			b.WriteString(" " + truncate(ev.Text, 60))
		}
	case models.EventTypeTranscriptFinal:
		b.WriteString(" final: " + truncate(ev.Text, 200))
	default:
		b.WriteString(" " + ev.EventType)
	}
	return b.String()
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicStatus := flag.String("topic-status", "media.transcription.status", "Job status topic")
	topicSegment := flag.String("topic-segment", "media.transcription.segment", "Segment transcript topic")
	topicFinal := flag.String("topic-final", "media.transcription.final", "Final transcript topic")
	jobID := flag.String("job", "", "Only show events of this job")
	lookback := flag.Duration("since", time.Hour, "How far back to start reading")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list := strings.Split(*brokers, ",")
	topics := []string{*topicStatus, *topicSegment, *topicFinal}
	done := make(chan struct{}, len(topics))
	for _, topic := range topics {
		go func(topic string) {
			consume(ctx, list, topic, *jobID, *lookback)
			done <- struct{}{}
		}(topic)
	}

	log.Printf("Job Watch started, brokers: %s", *brokers)
	for range topics {
		<-done
	}
}
