// Package logx provides the minimal operational logging used by shardcore.
//
// The core is pure compute (see segment and hnsw packages) and does not log
// on any hot path. This shim wraps log.Printf for one-off operational lines;
// no package in this module calls it.
package logx

import "log"

// Printf logs a single operational line, matching the teacher's direct use
// of the standard library logger rather than a structured logging package.
func Printf(format string, args ...any) {
	log.Printf(format, args...)
}
