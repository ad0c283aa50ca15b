// Package logging provides a simple leveled logging interface for the
// media transcoder.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information, including engine progress
//   - INFO: General operational messages
//   - WARN: Warning conditions such as failed workspace cleanup
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=1. Command-line tools may override it with
// [SetLevel].
//
// Request- and job-scoped messages go through a [Scope], which prefixes
// every line with key=value fields:
//
//	log := logging.With("request", req.ID, "preset", "720p")
//	log.Info("engine started (pid %d)", pid)
//	// [INFO] request=3f2a... preset=720p engine started (pid 4242)
package logging
