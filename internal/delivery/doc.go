// Package delivery orchestrates one notification run: poll unprocessed
// activities since a watermark, resolve the recipients tracking each target,
// compose a message per recipient, apply preferences, hand dispatches to the
// channel scheduler, and mark each activity processed exactly once.
//
// The processed flag is the sole dedup mechanism: polling is at-least-once,
// delivery is at-most-once-intended. Transport failures never abort a run and
// never leave an activity unprocessed.
package delivery
