// Package mediatypes classifies files by extension into the media types the
// organizer cares about, and maps extensions to MIME types.
package mediatypes
