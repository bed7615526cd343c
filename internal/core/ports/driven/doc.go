// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): persistence, external engines, the HITL
// task queue and the vector store. Core services depend only on these
// interfaces, never on concrete adapters.
package driven
