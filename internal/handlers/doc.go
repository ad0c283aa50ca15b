// Package handlers provides HTTP request handlers for the transcoding API.
//
// It includes handlers for:
//   - Starting transcode requests and streaming their progress as
//     server-sent events
//   - Cancelling and listing active requests
//   - Querying the job ledger
//   - Metadata probes and thumbnails
//   - Health checks, version and Prometheus metrics
package handlers
