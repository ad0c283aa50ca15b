// Package middleware provides HTTP middleware for the transcoding service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Response compression (gzip) that never buffers event streams
//   - Prometheus request metrics, measuring time to first byte for the
//     transcode stream
package middleware
