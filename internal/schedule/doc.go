// Package schedule holds irrigation and lighting programs and derives
// live zone activation state from their time windows.
//
// A program is a half-open window [start, end) bound to a zone. The
// Evaluator recomputes the activation maps from scratch on every tick
// using one time snapshot, detects edge transitions against the
// previous tick, appends to the activation history and fans out
// notifications. History is append-only and records activation starts.
package schedule
