package segment

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactPattern matches extracted segment files in a workspace.
const ArtifactPattern = "segment_*.mp3"

// ArtifactName names the workspace file of a segment starting at start.
// Names sort in timeline order.
func ArtifactName(start time.Duration) string {
	return fmt.Sprintf("segment_%012d.mp3", start.Milliseconds())
}

// Namer derives store object names for the segments of one job.
type Namer struct {
	jobID string
}

// NewNamer creates a namer for jobID.
func NewNamer(jobID string) Namer {
	return Namer{jobID: jobID}
}

// Blob returns the store object name of segment index.
func (n Namer) Blob(index int, fileName string) string {
	base := filepath.Base(fileName)
	base = sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" {
		base = "audio"
	}
	return fmt.Sprintf("%s/%s-segment-%03d.mp3", n.jobID, base, index)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	return b.String()
}
