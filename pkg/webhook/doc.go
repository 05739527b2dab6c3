// Package webhook ingests signed identity provider events and drives
// account materialization, email propagation, and account deletion.
//
// Delivery is at-least-once and unordered. Every handler here is
// idempotent; a best-effort replay guard short-circuits duplicates but
// correctness never depends on it.
package webhook
