// Package assembly joins segment transcripts into one document.
package assembly

import (
	"fmt"
	"sort"
	"strings"

	"media-transcription-pipeline/internal/models"
)

// Assemble concatenates transcripts in segment index order, separated by
// a single space. Every index from 0 to len-1 must be present and done.
// Transcripts are opaque; nothing is stitched or deduplicated.
func Assemble(segments []models.Segment) (string, error) {
	if len(segments) == 0 {
		return "", models.NewError(models.KindIncompleteAssembly, "assemble", "no segments to assemble", nil)
	}

	ordered := append([]models.Segment(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var b strings.Builder
	for i, seg := range ordered {
		if seg.Index != i {
			missing := i
			if seg.Index < i {
				return "", models.NewSegmentError(models.KindIncompleteAssembly, seg.Index, "assemble",
					fmt.Sprintf("segment %d appears more than once", seg.Index), nil)
			}
			return "", models.NewSegmentError(models.KindIncompleteAssembly, missing, "assemble",
				fmt.Sprintf("segment %d is missing", missing), nil)
		}
		if seg.Status != models.SegmentDone {
			return "", models.NewSegmentError(models.KindIncompleteAssembly, seg.Index, "assemble",
				fmt.Sprintf("segment %d is %s, not done", seg.Index, seg.Status), nil)
		}
		text := strings.TrimSpace(seg.Transcript)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
