// Package pipeline drives a job through upload, normalization,
// segmentation, transcription, assembly and summarization.
package pipeline

import (
	"errors"

	"media-transcription-pipeline/internal/models"
)

// ErrInvalidTransition is returned when a stage change breaks the forward
// order of the pipeline.
var ErrInvalidTransition = errors.New("invalid stage transition")

// ErrJobTerminal is returned when a finished job is changed.
var ErrJobTerminal = errors.New("job already finished")

// isValidTransition enforces the pipeline edges. processing -> transcribing
// is the only skip; error is reachable from every non-terminal stage.
func isValidTransition(from, to models.Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == models.StageError {
		return true
	}
	switch from {
	case "":
		return to == models.StageUploading
	case models.StageUploading:
		return to == models.StageProcessing
	case models.StageProcessing:
		return to == models.StageChunking || to == models.StageTranscribing
	case models.StageChunking:
		return to == models.StageTranscribing
	case models.StageTranscribing:
		return to == models.StageSummarizing || to == models.StageCompleted
	case models.StageSummarizing:
		return to == models.StageCompleted
	default:
		return false
	}
}
