// Package facility manages the greenhouse hierarchy: greenhouses, their
// zones, crops and the zone current-crop link.
//
// Plain CRUD goes through the repositories. Every state transition goes
// through the Coordinator, which runs its guard checks and the write in
// a single transaction so derived counters and cross-entity invariants
// cannot drift under concurrent requests.
package facility
