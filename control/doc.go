// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration documents, Prometheus metrics and debug probes for
// hioload-sock pollers and endpoints.
//
// Load reads a YAML document (with HIOSOCK_* environment overrides) that
// declares pollers, servers and clients by name. Metrics is nil-safe so
// components can be built without a registry.
package control
