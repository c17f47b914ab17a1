// Package docker provides Docker Engine API wrappers for envboot's
// container runtime.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image presence checks and pulls
//   - One-shot step containers: create, wait, start, stream logs, remove
//   - Container labels identifying the step, project and run a container
//     belongs to, used to find containers a run failed to clean up
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
