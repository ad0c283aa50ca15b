// Package encode runs one encoder process for one (input, preset) pair.
//
// A Job moves through pending, running and then exactly one of completed,
// failed or cancelled:
//
//   - running: the engine process has been spawned (the caller holds an
//     admission slot)
//   - completed: exit status 0 and a non-empty output file
//   - failed: non-zero exit (engine_failure, with the stderr tail), the
//     per-job ceiling elapsed (timeout), or exit 0 without usable output
//   - cancelled: the caller's context ended; the process group is killed
//     and reaped before Run returns
//
// Progress blocks from the engine are converted to ProgressSnapshot values
// whose percent never decreases and never leaves [0, 100], published no
// more than once per ProgressInterval. The last snapshot is always
// published.
package encode
