// Package api implements the HTTP REST API and WebSocket server for Greenhouse Core.
//
// This package provides:
//   - REST endpoints for greenhouses, zones, crops, programs and notifications
//   - WebSocket hub for real-time activation, sensor and notification broadcasts
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the coordinator,
// schedule store and notification fan-out. State transitions are
// validated synchronously and rejected mutations return a structured
// error body naming the violated invariant. External device controllers
// consume the activation map endpoint and the retained MQTT topics; the
// API never drives hardware directly.
//
// # Security
//
// Tokens are minted by the external identity collaborator and verified
// here (HS256, shared secret). Facility structure mutations require the
// admin role. WebSocket connections use single-use tickets to prevent
// token leakage in URLs.
package api
