//go:build linux

package topology

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// numCPU prefers the scheduler affinity mask over the raw CPU count so that
// cgroup/cpuset-restricted runs (containers, shared batch hosts) do not
// oversubscribe cores they cannot use.
func numCPU() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		if n := set.Count(); n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}
