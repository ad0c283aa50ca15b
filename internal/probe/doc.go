// Package probe extracts technical metadata from media inputs with ffprobe.
//
// Extract never modifies the input and may be called concurrently on the
// same file. When ffprobe cannot decode the input the returned error has
// code extraction_failed and its message is ffprobe's stderr, unchanged.
package probe
