/*
Package filesystem retries stat, open and remove calls that fail with a
transient error (ESTALE from a network mount, or EINTR). Any other error is
returned from the first attempt.

	info, err := filesystem.Stat(path)

Each call is labeled with the volume that contains the path and reported to
the installed Observer:

	filesystem.SetVolumes(filesystem.NewVolumes(
		filesystem.Volume{Name: "work", Path: cfg.WorkDir},
		filesystem.Volume{Name: "output", Path: cfg.OutputDir},
	))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
*/
package filesystem
