// Package engine drives the ffmpeg and ffprobe binaries.
//
// The rest of the service treats the engine as a black box: give it an
// input and a preset, get back an output file and a stream of status
// blocks. Command implements Launcher for long encodes and Runner for
// short probe and frame-grab invocations. Each process is started in its
// own process group; cancelling the context or calling Kill sends SIGKILL
// to the whole group, and Wait reaps it.
//
// ParseProgress decodes the key=value blocks ffmpeg writes with
// "-progress pipe:1".
package engine
