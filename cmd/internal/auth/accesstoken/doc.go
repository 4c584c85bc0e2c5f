// Package accesstoken issues and verifies the self-contained credential
// tokens handed to clients at login.
//
// A token proves identity (account id, email, role) until its own expiry.
// It does not prove liveness: the session table decides that, so a token
// that verifies here can still be rejected by the request gate.
//
// Two codecs are available:
//   - PASETO v4.public (Ed25519), the default.
//   - JWT HS256, compatible with tokens minted by the legacy Node backend.
package accesstoken
