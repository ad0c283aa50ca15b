// Package workspace allocates job-scoped scratch directories.
//
// Each encode job gets its own directory under the work root, named
// "job-<id>-<random>". Acquire refuses to allocate when the volume is below
// its free-space or free-inode floor, reported as a resource_exhausted
// failure that affects only the requesting job. Release deletes the tree and
// is safe to call from several deferred paths; only the first call acts.
//
// Sweep reclaims directories left by a previous process that died before it
// could release them.
package workspace
