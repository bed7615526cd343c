// Package domain contains the core business entities and rules for the
// Verity processing pipeline: documents, images, corpora, provenance,
// audit events and the configuration that governs their lifecycle.
// It has no dependencies on adapters or infrastructure.
package domain
