package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"

	"media-organizer/internal/logging"
	"media-organizer/internal/mediatypes"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	maxWidth    = 320
	maxHeight   = 180
	jpegQuality = 80
)

// Renderer produces thumbnail payloads for media files.
type Renderer struct{}

// NewRenderer returns a thumbnail renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces a JPEG thumbnail for the media file at path. Video files
// have a frame extracted with ffmpeg; images are decoded directly with an
// ffmpeg fallback for exotic formats.
func (r *Renderer) Render(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not accessible: %w", err)
	}

	var img image.Image
	var err error

	switch mediatypes.GetFileType(path) {
	case mediatypes.FileTypeImage:
		img, err = decodeImage(ctx, path)
	case mediatypes.FileTypeVideo:
		img, err = extractVideoFrame(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported file type for thumbnail: %s", path)
	}
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(ctx context.Context, path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	logging.Debug("imaging.Open failed for %s: %v, trying ffmpeg fallback", path, err)

	img, ffErr := decodeWithFFmpeg(ctx, path, nil)
	if ffErr != nil {
		return nil, fmt.Errorf("all image decode methods failed for %s: %w", path, ffErr)
	}
	return img, nil
}

func extractVideoFrame(ctx context.Context, path string) (image.Image, error) {
	// Seek a second in to skip black lead-in frames; retry from the start
	// for clips shorter than that.
	img, err := decodeWithFFmpeg(ctx, path, []string{"-ss", "00:00:01"})
	if err == nil {
		return img, nil
	}
	logging.Debug("Frame extraction at 1s failed for %s: %v, retrying from start", path, err)
	return decodeWithFFmpeg(ctx, path, nil)
}

func decodeWithFFmpeg(ctx context.Context, path string, preArgs []string) (image.Image, error) {
	args := append([]string{"-i", path}, preArgs...)
	args = append(args,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}
