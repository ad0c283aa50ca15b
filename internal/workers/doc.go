// Package workers sizes concurrency from the CPU budget.
//
// GOMAXPROCS follows the container CPU limit, so the values here track the
// CPUs actually available to the process:
//
//	maxJobs := workers.ForEncode(0)        // default admission ceiling
//	threads := workers.ThreadsPerJob(maxJobs) // ffmpeg -threads per job
package workers
