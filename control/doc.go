// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics, debug introspection and logging for
// corelend processes.
//
// Provides concurrent-safe state handling primitives including:
//   - Typed configuration from MOC_* environment variables and YAML
//   - Snapshot config store with reload listeners
//   - Gauges and atomic counters
//   - Debug probe registration
//   - Structured JSON loggers
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
