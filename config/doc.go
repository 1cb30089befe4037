// Package config holds the per-run configuration of the coordinator.
//
// A Run is assembled from defaults, an optional YAML config file and
// command-line flags, in that order. Validation failures are fatal and abort
// the run before any job is dispatched.
package config
