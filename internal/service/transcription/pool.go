package transcription

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/segment"
)

// Batch is a set of uploaded segments of one job.
type Batch struct {
	JobID    string
	FileName string
	Model    string
	Segments []models.Segment
}

// UpdateFunc observes each segment as it reaches a terminal status. It is
// called from a single goroutine, in completion order.
type UpdateFunc func(seg models.Segment)

type outcome struct {
	index  int
	result Result
	err    error
}

// TranscribeAll dispatches every segment through a worker pool of
// Config.Concurrency workers. A failing segment does not stop its
// siblings; cancelling ctx stops them all. The returned slice is ordered
// by index. The error is the failure of the lowest-indexed failed
// segment, or ctx.Err() on cancellation.
func (o *Orchestrator) TranscribeAll(ctx context.Context, batch Batch, onUpdate UpdateFunc) ([]models.Segment, error) {
	segments := append([]models.Segment(nil), batch.Segments...)
	lifecycles := make([]*segment.Lifecycle, len(segments))
	for i := range segments {
		if segments[i].Index != i {
			return segments, models.NewError(models.KindValidation, "transcribe all",
				fmt.Sprintf("segment at position %d has index %d", i, segments[i].Index), nil)
		}
		// A missing blob reference fails validation on the first attempt.
		lc := segment.NewLifecycle(i)
		_ = lc.MarkUploaded()
		lifecycles[i] = lc
	}

	results := make(chan outcome, len(segments))
	go func() {
		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for i := range segments {
			if ctx.Err() != nil {
				break
			}
			seg := segments[i]
			lc := lifecycles[i]
			g.Go(func() error {
				res, err := o.transcribe(ctx, Request{
					BlobURL:   seg.BlobURL,
					SegmentID: seg.Index,
					FileName:  segmentFileName(batch.FileName, seg),
					Model:     batch.Model,
					JobID:     batch.JobID,
				}, lc)
				results <- outcome{index: seg.Index, result: res, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	errs := make([]error, len(segments))
	for out := range results {
		seg := &segments[out.index]
		lifecycles[out.index].Apply(seg)
		if out.err == nil {
			seg.Transcript = out.result.Transcript
		}
		errs[out.index] = out.err
		if onUpdate != nil {
			onUpdate(*seg)
		}
	}

	if err := ctx.Err(); err != nil {
		return segments, err
	}
	for _, err := range errs {
		if err != nil {
			return segments, err
		}
	}
	return segments, nil
}

func segmentFileName(fileName string, seg models.Segment) string {
	if seg.BlobURL != "" {
		u := seg.BlobURL
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
		if base := path.Base(u); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return path.Base(segment.NewNamer("job").Blob(seg.Index, fileName))
}
