// Package notify is the notification fan-out: it classifies each
// notification kind into a role audience, persists one row per
// addressed recipient with a registered delivery token, broadcasts a
// realtime event and pushes to the audience group.
//
// Hardware alerts are de-duplicated per zone: until the alert is marked
// read, further alerts for the same zone are rejected.
package notify
