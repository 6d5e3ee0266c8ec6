// Package runner executes external conversion engines as timeout-bounded
// child processes. Every invocation spawns and reaps exactly one process
// group; no zombie or orphan survives a call, success or failure.
package runner
