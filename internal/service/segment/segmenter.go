package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/observability/metrics"
	"media-transcription-pipeline/internal/service/media"
)

// MinSplitDuration is the shortest range the segmenter will halve. An
// oversize extraction shorter than this is an OversizeError.
const MinSplitDuration = time.Second

// Result is the output of one segmentation run.
type Result struct {
	Segments []models.Segment
	// Bypassed is set when the whole stream is a single segment and no
	// extraction ran.
	Bypassed bool
	Tier     models.Tier
	Target   time.Duration
	Splits   int
}

// Segmenter cuts normalized audio into independently decodable segments.
type Segmenter struct {
	engine   *media.Engine
	minSplit time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a segmenter using engine for extraction.
func New(engine *media.Engine) *Segmenter {
	return &Segmenter{
		engine:   engine,
		minSplit: MinSplitDuration,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("segmenter"),
	}
}

// NeedsChunking reports whether audio must be cut into more than one
// segment. A stream within both the duration target and the byte cap is
// transcribed whole.
func NeedsChunking(audio models.NormalizedAudio, policy models.TierPolicy) bool {
	tier := policy.Lookup(audio.Tier)
	capBytes := policy.SegmentCap()
	target := TargetDuration(tier, tier.BitrateKbps, capBytes)
	return audio.Duration > target || audio.SizeBytes > capBytes
}

// Segment splits audio into segments no larger than the policy cap. Every
// segment is re-encoded from the normalized stream by its own ffmpeg run.
func (s *Segmenter) Segment(ctx context.Context, ws *media.Workspace, audio models.NormalizedAudio, policy models.TierPolicy) (Result, error) {
	if audio.Duration <= 0 {
		return Result{}, models.NewError(models.KindConversion, "segment", "normalized audio has no duration", nil)
	}

	tier := policy.Lookup(audio.Tier)
	capBytes := policy.SegmentCap()
	target := TargetDuration(tier, tier.BitrateKbps, capBytes)
	res := Result{Tier: tier, Target: target}

	if !NeedsChunking(audio, policy) {
		res.Bypassed = true
		res.Segments = []models.Segment{{
			Index:     0,
			Start:     0,
			End:       audio.Duration,
			SizeBytes: audio.SizeBytes,
			Path:      audio.Path,
			Status:    models.SegmentPending,
		}}
		s.metrics.RecordSegmentCreated(audio.SizeBytes)
		s.metrics.RecordChunkingSkipped()
		s.logger.Info().
			Dur("duration", audio.Duration).
			Int64("sizeBytes", audio.SizeBytes).
			Msg("Single segment suffices, skipping chunking")
		return res, nil
	}

	params := media.EncodeParams{
		SampleRateHz: audio.SampleRateHz,
		BitrateKbps:  tier.BitrateKbps,
	}

	var ranges []models.TimeRange
	for _, r := range Plan(audio.Duration, target) {
		extracted, err := s.extract(ctx, ws, audio.Path, r, params, capBytes, &res.Splits)
		if err != nil {
			return Result{}, err
		}
		ranges = append(ranges, extracted...)
	}

	artifacts, err := ws.Artifacts(ArtifactPattern)
	if err != nil {
		return Result{}, models.NewError(models.KindConversion, "segment", "cannot list segment artifacts", err)
	}
	if len(artifacts) != len(ranges) {
		return Result{}, models.NewError(models.KindConversion, "segment",
			fmt.Sprintf("expected %d segment artifacts, found %d", len(ranges), len(artifacts)), nil)
	}

	segments := make([]models.Segment, len(ranges))
	for i, r := range ranges {
		a := artifacts[i]
		if want := ArtifactName(r.Start); a.Name != want {
			return Result{}, models.NewError(models.KindConversion, "segment",
				fmt.Sprintf("segment %d artifact is %s, expected %s", i, a.Name, want), nil)
		}
		segments[i] = models.Segment{
			Index:     i,
			Start:     r.Start,
			End:       r.End,
			SizeBytes: a.Size,
			Path:      a.Path,
			Status:    models.SegmentPending,
		}
	}

	if err := Verify(segments, audio.Duration, capBytes); err != nil {
		return Result{}, models.NewError(models.KindConversion, "segment", "segment coverage check failed", err)
	}

	res.Segments = segments
	s.logger.Info().
		Str("tier", string(tier.Name)).
		Dur("target", target).
		Int("segments", len(segments)).
		Int("splits", res.Splits).
		Msg("Segmented audio")
	return res, nil
}

// extract encodes r and returns the ranges it ended up as. Oversize
// output is discarded and both halves are extracted instead.
func (s *Segmenter) extract(ctx context.Context, ws *media.Workspace, in string, r models.TimeRange, params media.EncodeParams, capBytes int64, splits *int) ([]models.TimeRange, error) {
	name := ArtifactName(r.Start)
	rng := r
	params.Range = &rng

	if err := s.engine.Transcode(ctx, in, ws.Path(name), params); err != nil {
		return nil, err
	}
	a, err := ws.Stat(name)
	if err != nil {
		return nil, models.NewError(models.KindConversion, "segment",
			fmt.Sprintf("no output for range %v-%v", r.Start, r.End), err)
	}
	if a.Size == 0 {
		_ = ws.Remove(name)
		return nil, models.NewError(models.KindConversion, "segment",
			fmt.Sprintf("empty output for range %v-%v", r.Start, r.End), nil)
	}
	if a.Size <= capBytes {
		s.metrics.RecordSegmentCreated(a.Size)
		return []models.TimeRange{r}, nil
	}

	if err := ws.Remove(name); err != nil {
		return nil, fmt.Errorf("remove oversize artifact: %w", err)
	}
	if r.Duration() < s.minSplit {
		return nil, models.NewError(models.KindOversize, "segment",
			fmt.Sprintf("%v of audio encodes to %d bytes, above the %d byte cap", r.Duration(), a.Size, capBytes), nil)
	}

	*splits++
	s.metrics.RecordSegmentSplit()
	s.logger.Debug().
		Dur("start", r.Start).
		Dur("end", r.End).
		Int64("sizeBytes", a.Size).
		Msg("Segment over cap, splitting")

	left, right := Split(r)
	head, err := s.extract(ctx, ws, in, left, params, capBytes, splits)
	if err != nil {
		return nil, err
	}
	tail, err := s.extract(ctx, ws, in, right, params, capBytes, splits)
	if err != nil {
		return nil, err
	}
	return append(head, tail...), nil
}
