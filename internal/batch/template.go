package batch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"media-organizer/internal/database"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// RenderName expands a naming template against a file record and returns the
// destination file name with the original extension appended.
//
// Recognized placeholders are {filename} (original name minus extension),
// {resolution} (e.g. "1080p"), {codec} and {duration} (whole seconds).
// Unrecognized {...} tokens are left verbatim so a typo shows up in the
// preview instead of silently vanishing.
func RenderName(template string, rec *database.FileRecord) string {
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		switch token {
		case "{filename}":
			return strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name))
		case "{resolution}":
			if rec.Height > 0 {
				return fmt.Sprintf("%dp", rec.Height)
			}
			return "unknown"
		case "{codec}":
			if rec.Codec != "" {
				return rec.Codec
			}
			return "unknown"
		case "{duration}":
			if rec.Duration > 0 {
				return fmt.Sprintf("%.0f", rec.Duration)
			}
			return "unknown"
		default:
			return token
		}
	})
	return rendered + filepath.Ext(rec.Name)
}
