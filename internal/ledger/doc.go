// Package ledger defines the domain types shared by every part of the points
// ledger: enrollments, cards, activity records, award requests and results,
// balance views and change events.
//
// # Single writer
//
// Card.Points is the only authoritative balance. Enrollment.PointsCache is a
// derived copy written in the same transaction as the card and is never read
// to make an award decision. Nothing outside store.Tx.ApplyDelta mutates
// either field.
//
// # Identity
//
// Cards and activity records use UUIDv7 ids (time-sortable). Change events
// use content-addressed ids computed from the idempotency key and card id,
// so every emission for the same logical award carries the same id.
package ledger
