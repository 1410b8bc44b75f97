// Package auth provides token verification for Greenhouse Core.
//
// Credential issuance lives in an external identity collaborator; this
// package verifies HS256 JWTs against the shared secret and exposes the
// two-tier role model (operator → admin) the API checks against.
package auth
