// Package audit records security-relevant provisioning events to the
// database: whitelist mutations, invitation dispatches, webhook deliveries
// and rejections, and account materializations and deletions.
//
// Audit writes are advisory. A failed audit insert is logged and never
// fails the operation that produced it.
//
// Default: 90 days retention, enforced by a daily cleanup job.
package audit
