package engine

import "runtime"

// Platform describes the concurrency capabilities of the host.
type Platform struct {
	// ForkCapable hosts only parallelize when jobs are requested explicitly.
	ForkCapable bool
	// DefaultJobs is the pool size on hosts that are not fork capable.
	DefaultJobs int
}

func CurrentPlatform() Platform {
	return Platform{
		ForkCapable: runtime.GOOS != "windows",
		DefaultJobs: 4,
	}
}
