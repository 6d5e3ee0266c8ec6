// Package pipeline executes conversion plans: each stage materializes the
// previous artifact into a scoped working directory, drives one external
// engine under a hard timeout, and hands its output to the next stage.
// Failures abort the plan immediately and surface as structured stage errors;
// every temporary file is gone when Execute returns, except the promoted
// terminal artifact.
package pipeline
