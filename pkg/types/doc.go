// Package types holds the wire- and pipeline-level data shapes shared
// across quietmesh's core: Envelope, Event, ResolvedDep, BlockedRecord,
// and Delta. Nothing in this package touches the database or the
// network; it is pure data plus the small parsing/projection helpers
// (ParseDepRef, OutgoingFromEnvelope) that every other package relies on
// to stay consistent about field shapes.
package types
