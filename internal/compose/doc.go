// Package compose turns a structured activity plus an entity snapshot into a
// human-readable notification message, phrased for the viewpoint of the
// recipient: the entity itself, a party tracking it, or a counterparty.
//
// Composition is a pure function over an immutable variable set built once per
// call; it performs no I/O and holds no state.
package compose
