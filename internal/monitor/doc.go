// Package monitor defines the core types and collaborator contracts shared by the
// price error monitor: product observations, classifications, status snapshots,
// and the interfaces for source collectors, alert sinks and clocks.
package monitor
