package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType classifies a file for scanning and thumbnail purposes.
type FileType string

const (
	FileTypeVideo FileType = "video"
	FileTypeImage FileType = "image"
	FileTypeOther FileType = "other"
)

// VideoExtensions is the set of recognized video file extensions.
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpg": true, ".mpeg": true, ".ts": true,
}

// ImageExtensions is the set of recognized image file extensions.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true,
}

// GetFileType returns the FileType for a path based on its extension.
func GetFileType(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	return FileTypeOther
}

// IsMedia reports whether the path has a recognized media extension.
func IsMedia(path string) bool {
	return GetFileType(path) != FileTypeOther
}

// GetMimeType returns the MIME type for a path's extension, or
// application/octet-stream if unknown.
func GetMimeType(path string) string {
	mimeTypes := map[string]string{
		".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
		".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
		".mp4": "video/mp4", ".mkv": "video/x-matroska", ".avi": "video/x-msvideo",
		".mov": "video/quicktime", ".wmv": "video/x-ms-wmv", ".flv": "video/x-flv",
		".webm": "video/webm", ".m4v": "video/x-m4v", ".mpg": "video/mpeg",
		".mpeg": "video/mpeg", ".ts": "video/mp2t",
	}
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}
