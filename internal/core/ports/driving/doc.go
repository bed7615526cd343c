// Package driving provides interfaces for primary/inbound ports: the
// operations the CLI, the watch folder and tests invoke on the core.
package driving
