package batch

import (
	"testing"

	"media-organizer/internal/database"
)

func TestRenderName(t *testing.T) {
	rec := &database.FileRecord{
		Name:     "movie.mp4",
		Height:   1080,
		Width:    1920,
		Codec:    "h264",
		Duration: 5400.4,
	}

	tests := []struct {
		template string
		want     string
	}{
		{"{filename}_{resolution}", "movie_1080p.mp4"},
		{"{filename} [{codec}]", "movie [h264].mp4"},
		{"{filename}-{duration}", "movie-5400.mp4"},
		{"{filename}", "movie.mp4"},
		{"fixed-name", "fixed-name.mp4"},
		// Unrecognized placeholders pass through so the user sees the typo.
		{"{filename}_{resolutoin}", "movie_{resolutoin}.mp4"},
		{"{filename}_{year}", "movie_{year}.mp4"},
	}

	for _, tt := range tests {
		if got := RenderName(tt.template, rec); got != tt.want {
			t.Errorf("RenderName(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestRenderNameMissingMetadata(t *testing.T) {
	rec := &database.FileRecord{Name: "clip.mkv"}

	if got := RenderName("{filename}_{resolution}_{codec}_{duration}", rec); got != "clip_unknown_unknown_unknown.mkv" {
		t.Errorf("RenderName() = %q", got)
	}
}

func TestRenderNameNoExtension(t *testing.T) {
	rec := &database.FileRecord{Name: "README", Height: 720}

	if got := RenderName("{filename}_{resolution}", rec); got != "README_720p" {
		t.Errorf("RenderName() = %q", got)
	}
}
