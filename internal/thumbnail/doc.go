// Package thumbnail extracts one frame from a video with ffmpeg and turns it
// into a JPEG of fixed width.
//
// Positions past the end of the video stream are clamped to its last whole
// second (duration minus one second). A seek that yields no frame is retried
// a few times, one second earlier each time. Scaling uses
// libvips when [InitVips] has been called and falls back to
// disintegration/imaging otherwise.
package thumbnail
