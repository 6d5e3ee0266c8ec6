// Package artifacts manages scoped temporary storage for uploaded inputs,
// intermediate stage files, and final outputs. A scope guarantees deletion of
// everything it owns when it closes, regardless of exit path.
package artifacts
