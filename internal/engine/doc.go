// Package engine is the facade the CLI and HTTP layers talk to. It owns the
// single draft batch, wires the scanner, cache and batch machinery to one
// store, and exposes the stage/commit/undo lifecycle.
package engine
