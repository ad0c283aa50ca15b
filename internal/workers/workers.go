package workers

import "runtime"

// Count returns a worker count scaled from the available CPUs.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for single-threaded CPU-bound tasks
//   - 0.5 for tasks that are themselves multi-threaded (encoders)
//
// The limit parameter caps the worker count. Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForEncode returns the default number of concurrent encode jobs.
// Each ffmpeg process runs several threads of its own, so this is half
// the CPU count.
func ForEncode(limit int) int {
	return Count(0.5, limit)
}

// ThreadsPerJob divides the CPUs between jobs concurrent encoders and
// returns the thread count each should be given (at least 1).
func ThreadsPerJob(jobs int) int {
	if jobs < 1 {
		jobs = 1
	}
	threads := runtime.GOMAXPROCS(0) / jobs
	if threads < 1 {
		threads = 1
	}
	return threads
}
