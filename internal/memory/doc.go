// Package memory watches memory usage and signals pressure to the admission
// controller.
//
// A Monitor samples either the Go heap against its limit (GOMEMLIMIT or
// Config.MemoryLimitBytes) or, when no limit is set, host memory through
// gopsutil. Usage at or above CriticalWaterMark makes UnderPressure return
// true; it returns false again once usage falls below HighWaterMark. The
// gap between the two marks prevents flapping.
//
// ConfigureFromEnv derives GOMEMLIMIT from a container limit (MEMORY_LIMIT)
// and should be called first thing in main.
package memory
