// Package memory configures the Go memory limit from container environment
// variables so large thumbnail payloads and copy buffers stay within the
// container's allocation.
package memory
