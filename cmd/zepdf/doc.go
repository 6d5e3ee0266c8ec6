// Command zepdf is the document conversion service binary: it serves the
// HTTP conversion API and provides local utilities for one-shot conversion,
// listing supported format pairs, checking engine binaries, and managing
// configuration.
package main
