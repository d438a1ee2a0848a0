// Package model holds the persisted domain shapes: activities recorded against
// tracked entities, entity snapshots, recipients and their per-item
// notification settings. The shapes round-trip through the store as JSON and
// keep the field names of the upstream event capture system.
package model
