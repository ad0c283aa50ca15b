// Command transcodectl runs the transcoding core from the command line,
// without the HTTP service.
//
// Usage:
//
//	transcodectl probe <file>
//	transcodectl thumbnail <file> [--at 1:30] [-o poster.jpg]
//	transcodectl transcode <file> -p 1080p,720p [--parallel] [--fail-fast] [-o out/]
//	transcodectl presets
//	transcodectl version
//
// Every command accepts --json for machine-readable output. In JSON mode
// transcode prints one progress event per line, in the same shape the
// service streams.
//
// On a terminal, transcode redraws a progress bar per preset; when
// output is redirected it prints a line per state change and per 10% of
// progress. SIGINT cancels the running encodes, cleans up their
// workspaces and exits non-zero.
//
// FFMPEG_PATH, FFPROBE_PATH, WORK_DIR and LOG_LEVEL provide flag defaults.
package main
