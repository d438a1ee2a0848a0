// Package schedule decides, per channel, whether a notification is sent now,
// deferred, or suppressed. Email goes out synchronously. Push honors the
// recipient's preferred send window, a one-hour rate limit, and a
// single-pending-push constraint; out-of-window pushes are handed to the
// deferred queue.
package schedule
