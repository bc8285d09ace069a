// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process host runtime for the core lending protocol. A Team is a fixed
// set of worker goroutines, each locked to its own OS thread, that runs
// fork-join parallel regions and raises the region and implicit-barrier
// notifications an api.Host expects around every region.
package concurrency
