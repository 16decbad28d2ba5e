// Package workers provides helpers for sizing bounded worker pools.
//
// Pool sizes are derived from GOMAXPROCS so container CPU limits are
// respected (Go 1.19+), with a hard cap to avoid saturating slow network
// shares with concurrent probes. The SCAN_WORKERS environment variable
// overrides the automatic calculation.
package workers
