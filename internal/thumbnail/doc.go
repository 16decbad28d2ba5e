// Package thumbnail renders preview images for media files. Output is JPEG
// bytes intended to be stored through the cache manager.
package thumbnail
