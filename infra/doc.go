// Package infra contains the technical adapters of the planner: the zerolog
// logger, metrics sinks, the MQTT publisher, the SQLite run store and Sentry
// reporting. These packages depend only on the interfaces and types defined
// in the core packages.
package infra
