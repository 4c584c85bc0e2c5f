// Package token provides hashing primitives for credential tokens held
// server-side.
//
// The session table never keeps a credential token in plaintext; it keeps a
// 64-char hex digest and compares digests in constant time.
//
// Environment:
//   - FEEDBACK_TOKEN_HMAC_KEY: when set, digests are HMAC-SHA256(token, key).
//     Otherwise SHA-256(token) is used (dev mode).
//
// Policy:
//   - When FEEDBACK_REQUIRE_TOKEN_HMAC=true the server refuses to start
//     without a key of at least MinHMACKeyBytes.
package token
