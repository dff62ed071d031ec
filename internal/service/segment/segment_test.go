package segment

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"media-transcription-pipeline/internal/models"
)

func TestArtifactName_SortsInTimelineOrder(t *testing.T) {
	starts := []time.Duration{
		20 * time.Minute,
		0,
		150 * time.Second,
		5 * time.Minute,
		90 * time.Second,
	}
	names := make([]string, len(starts))
	for i, s := range starts {
		names[i] = ArtifactName(s)
	}
	sort.Strings(names)

	want := []string{
		ArtifactName(0),
		ArtifactName(90 * time.Second),
		ArtifactName(150 * time.Second),
		ArtifactName(5 * time.Minute),
		ArtifactName(20 * time.Minute),
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestNamer_Blob(t *testing.T) {
	n := NewNamer("job-123")

	tests := []struct {
		fileName string
		index    int
		want     string
	}{
		{"meeting.mp4", 0, "job-123/meeting-segment-000.mp3"},
		{"Team Sync v2.mov", 12, "job-123/Team_Sync_v2-segment-012.mp3"},
		{"", 3, "job-123/audio-segment-003.mp3"},
		{"../../etc/passwd", 1, "job-123/passwd-segment-001.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := n.Blob(tt.index, tt.fileName)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if strings.Contains(got, "..") {
				t.Errorf("blob name %q escapes the job prefix", got)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		total     time.Duration
		target    time.Duration
		wantCount int
		wantLast  time.Duration
	}{
		{"exact multiple", 30 * time.Minute, 5 * time.Minute, 6, 5 * time.Minute},
		{"remainder", 31 * time.Minute, 5 * time.Minute, 7, time.Minute},
		{"shorter than target", 3 * time.Minute, 10 * time.Minute, 1, 3 * time.Minute},
		{"equal to target", 10 * time.Minute, 10 * time.Minute, 1, 10 * time.Minute},
		{"zero target", 7 * time.Minute, 0, 1, 7 * time.Minute},
		{"sub-second remainder", 10*time.Minute + 250*time.Millisecond, 5 * time.Minute, 3, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := Plan(tt.total, tt.target)
			if len(ranges) != tt.wantCount {
				t.Fatalf("expected %d ranges, got %d", tt.wantCount, len(ranges))
			}
			if last := ranges[len(ranges)-1].Duration(); last != tt.wantLast {
				t.Errorf("expected last range %v, got %v", tt.wantLast, last)
			}
			if err := VerifyRanges(ranges, tt.total); err != nil {
				t.Errorf("expected exact coverage, got %v", err)
			}
		})
	}
}

func TestPlan_EmptyInput(t *testing.T) {
	if ranges := Plan(0, time.Minute); ranges != nil {
		t.Errorf("expected nil, got %v", ranges)
	}
}

func TestTargetDuration(t *testing.T) {
	policy := models.DefaultTierPolicy()

	tests := []struct {
		name    string
		tier    models.Tier
		bitrate int
		cap     int64
		want    time.Duration
	}{
		{"small tier under cap", policy.Small, 64, models.MaxSegmentBytes, 10 * time.Minute},
		{"large tier under cap", policy.Large, 48, models.MaxSegmentBytes, 5 * time.Minute},
		{"huge tier under cap", policy.Huge, 32, models.MaxSegmentBytes, 4 * time.Minute},
		// 1 MB at 64 kbps fills in 131.072 s; 90% of that is 117.964 s.
		{"cap bound", policy.Small, 64, models.MB, 117964 * time.Millisecond},
		{"fallback to tier bitrate", policy.Large, 0, models.MB, 157286 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetDuration(tt.tier, tt.bitrate, tt.cap)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	total := 10 * time.Minute
	good := []models.Segment{
		{Index: 0, Start: 0, End: 5 * time.Minute, SizeBytes: 100},
		{Index: 1, Start: 5 * time.Minute, End: total, SizeBytes: 100},
	}
	if err := Verify(good, total, 1000); err != nil {
		t.Fatalf("expected valid segments, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]models.Segment) []models.Segment
		wantErr error
	}{
		{"empty", func([]models.Segment) []models.Segment { return nil }, ErrNoSegments},
		{"gap", func(s []models.Segment) []models.Segment { s[1].Start += time.Second; return s }, ErrCoverageGap},
		{"overlap", func(s []models.Segment) []models.Segment { s[1].Start -= time.Second; return s }, ErrCoverageGap},
		{"truncated", func(s []models.Segment) []models.Segment { s[1].End -= time.Second; return s }, ErrTruncated},
		{"late start", func(s []models.Segment) []models.Segment { s[0].Start = time.Second; return s }, ErrCoverageGap},
		{"over cap", func(s []models.Segment) []models.Segment { s[0].SizeBytes = 1001; return s }, ErrOverCap},
		{"index order", func(s []models.Segment) []models.Segment { s[0].Index, s[1].Index = 1, 0; return s }, ErrBadIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := append([]models.Segment(nil), good...)
			err := Verify(tt.mutate(segs), total, 1000)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
