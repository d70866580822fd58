// Package notify delivers reminder notifications over email and SMS.
//
// Email goes through a primary HTTP API provider; recipients the primary
// rejects as unauthorized are retried once through an SMTP relay fallback.
// Batches run concurrently, SMS sends are paced sequentially. Dispatchers
// always return exactly one Result per recipient: provider failures are
// captured, never propagated as a dispatch error.
package notify
