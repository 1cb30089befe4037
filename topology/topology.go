// Package topology detects how many logical CPU cores this process may use.
// The count feeds the concurrency plan: it caps job-level parallelism and is
// forwarded to every worker as its process budget.
package topology

// DefaultCores is the conservative fallback when no host facility reports a
// usable core count.
const DefaultCores = 4

// Cores returns a positive core count. It never fails; when the host query
// degrades it falls back to DefaultCores.
func Cores() int {
	return normalize(numCPU())
}

func normalize(n int) int {
	if n < 1 {
		return DefaultCores
	}
	return n
}
