// Package queue implements the deferred push queue: a persisted delayed-job
// table plus a worker that executes jobs once their due time passes. A job
// carries everything needed to re-dispatch without the original activity:
// recipient id, message text, and the extra push payload.
package queue
