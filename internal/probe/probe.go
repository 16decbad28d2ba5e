package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"media-organizer/internal/database"
)

// Metadata holds the technical attributes extracted from one media file.
type Metadata struct {
	Duration  float64 // seconds
	Width     int
	Height    int
	Codec     string
	Subtitles []database.SubtitleStream
}

// Provider extracts metadata for a media file. Implementations must be safe
// for concurrent use; the scanner probes from multiple workers.
type Provider interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
}

// FFprobe is the standard Provider, shelling out to the ffprobe binary.
type FFprobe struct {
	timeout time.Duration
}

// NewFFprobe returns an ffprobe-backed provider. A probe that takes longer
// than timeout is killed; zero means no limit beyond the caller's context.
func NewFFprobe(timeout time.Duration) *FFprobe {
	return &FFprobe{timeout: timeout}
}

// Probe runs ffprobe against path and parses its JSON output.
func (p *FFprobe) Probe(ctx context.Context, path string) (*Metadata, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	return parseFFprobeOutput(stdout.Bytes())
}

// ffprobe JSON shapes; only the fields we read.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Tags      map[string]string `json:"tags"`
}

func parseFFprobeOutput(data []byte) (*Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &Metadata{}

	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err == nil {
			meta.Duration = d
		}
	}

	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			// First video stream wins; attachments like cover art come later.
			if meta.Codec == "" {
				meta.Codec = stream.CodecName
				meta.Width = stream.Width
				meta.Height = stream.Height
			}
		case "subtitle":
			meta.Subtitles = append(meta.Subtitles, database.SubtitleStream{
				Index:    stream.Index,
				Language: stream.Tags["language"],
				Title:    stream.Tags["title"],
				Codec:    stream.CodecName,
			})
		}
	}

	return meta, nil
}
