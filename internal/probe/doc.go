// Package probe extracts technical metadata from media files using ffprobe.
package probe
