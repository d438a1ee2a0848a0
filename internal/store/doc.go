// Package store persists the shapes the notification engine works over:
// activities, entity snapshots, recipients with their tracking lists, and
// deferred push jobs. The single implementation is a SQLite file accessed
// through sqlx; records are stored as JSON payloads with the columns needed
// for polling and joins lifted out.
package store
