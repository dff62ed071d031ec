package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
)

// DefaultPassthroughMax is the size below which mp3 input skips transcoding.
const DefaultPassthroughMax = 10 * models.MB

// NormalizedName is the workspace name of the normalized stream.
const NormalizedName = "normalized.mp3"

// Source is an ingested upload inside a workspace.
type Source struct {
	Path     string
	MIMEType string
	// OriginalSize selects the tier. It is the size of the upload, not of
	// any intermediate file.
	OriginalSize int64
}

// Normalizer converts arbitrary audio/video into mono mp3.
type Normalizer struct {
	engine         *Engine
	passthroughMax int64
	logger         zerolog.Logger
}

// NewNormalizer creates a normalizer. passthroughMax <= 0 uses the default.
func NewNormalizer(engine *Engine, passthroughMax int64) *Normalizer {
	if passthroughMax <= 0 {
		passthroughMax = DefaultPassthroughMax
	}
	return &Normalizer{
		engine:         engine,
		passthroughMax: passthroughMax,
		logger:         logging.WithComponent("normalizer"),
	}
}

// Normalize produces the NormalizedAudio for src. On failure the partial
// output is removed from the workspace.
func (n *Normalizer) Normalize(ctx context.Context, ws *Workspace, src Source, policy models.TierPolicy) (models.NormalizedAudio, error) {
	tier := policy.Select(src.OriginalSize)

	if n.canPassThrough(src) {
		duration, err := n.engine.Probe(ctx, src.Path)
		if err != nil {
			return models.NormalizedAudio{}, err
		}
		n.logger.Debug().
			Str("path", src.Path).
			Dur("duration", duration).
			Msg("Passing mp3 input through unchanged")
		return models.NormalizedAudio{
			Path:         src.Path,
			Format:       "mp3",
			SampleRateHz: tier.SampleRateHz,
			BitrateKbps:  estimateBitrate(src.OriginalSize, duration, tier.BitrateKbps),
			Duration:     duration,
			SizeBytes:    src.OriginalSize,
			Passthrough:  true,
			Tier:         tier.Name,
		}, nil
	}

	out := ws.Path(NormalizedName)
	fail := func(err error) (models.NormalizedAudio, error) {
		if rmErr := ws.Remove(NormalizedName); rmErr != nil {
			n.logger.Warn().Err(rmErr).Str("path", out).Msg("Failed to remove partial output")
		}
		return models.NormalizedAudio{}, err
	}

	start := time.Now()
	err := n.engine.Transcode(ctx, src.Path, out, EncodeParams{
		SampleRateHz: tier.SampleRateHz,
		BitrateKbps:  tier.BitrateKbps,
	})
	if err != nil {
		return fail(err)
	}

	artifact, err := ws.Stat(NormalizedName)
	if err != nil {
		return fail(models.NewError(models.KindConversion, "normalize", "ffmpeg produced no output", err))
	}
	if artifact.Size == 0 {
		return fail(models.NewError(models.KindConversion, "normalize", "ffmpeg produced zero output bytes", nil))
	}

	duration, err := n.engine.Probe(ctx, out)
	if err != nil {
		return fail(err)
	}

	n.logger.Info().
		Str("tier", string(tier.Name)).
		Int("sampleRateHz", tier.SampleRateHz).
		Int("bitrateKbps", tier.BitrateKbps).
		Int64("inputBytes", src.OriginalSize).
		Int64("outputBytes", artifact.Size).
		Dur("duration", duration).
		Dur("took", time.Since(start)).
		Msg("Normalized media")

	return models.NormalizedAudio{
		Path:         out,
		Format:       "mp3",
		SampleRateHz: tier.SampleRateHz,
		BitrateKbps:  tier.BitrateKbps,
		Duration:     duration,
		SizeBytes:    artifact.Size,
		Tier:         tier.Name,
	}, nil
}

func (n *Normalizer) canPassThrough(src Source) bool {
	if src.OriginalSize <= 0 || src.OriginalSize >= n.passthroughMax {
		return false
	}
	mime := strings.ToLower(strings.TrimSpace(src.MIMEType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	ext := strings.ToLower(filepath.Ext(src.Path))
	return mime == "audio/mpeg" || mime == "audio/mp3" || (mime == "" && ext == ".mp3")
}

// estimateBitrate derives kbps from size and duration, falling back to def.
func estimateBitrate(size int64, duration time.Duration, def int) int {
	if size <= 0 || duration <= 0 {
		return def
	}
	kbps := int(float64(size*8) / duration.Seconds() / 1000)
	if kbps <= 0 {
		return def
	}
	return kbps
}

// String describes the source for logs.
func (s Source) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", filepath.Base(s.Path), s.MIMEType, s.OriginalSize)
}
