package mediatypes

import "testing"

func TestGetFileType(t *testing.T) {
	tests := []struct {
		path string
		want FileType
	}{
		{"movie.mp4", FileTypeVideo},
		{"movie.MKV", FileTypeVideo},
		{"/share/films/clip.webm", FileTypeVideo},
		{"poster.jpg", FileTypeImage},
		{"notes.txt", FileTypeOther},
		{"noext", FileTypeOther},
	}

	for _, tt := range tests {
		if got := GetFileType(tt.path); got != tt.want {
			t.Errorf("GetFileType(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType("a.mp4"); got != "video/mp4" {
		t.Errorf("GetMimeType(a.mp4) = %q", got)
	}
	if got := GetMimeType("a.xyz"); got != "application/octet-stream" {
		t.Errorf("GetMimeType(a.xyz) = %q", got)
	}
}

func TestIsMedia(t *testing.T) {
	if !IsMedia("movie.avi") {
		t.Error("Expected movie.avi to be media")
	}
	if IsMedia("readme.md") {
		t.Error("Expected readme.md to not be media")
	}
}
