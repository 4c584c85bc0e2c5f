// Package identity holds account records and verifies login credentials.
//
// It is the credential verifier for the login flow: given an email and a
// password it returns a Principal or a stable error. Failed attempts are
// counted per account; five consecutive failures lock the account for two
// hours.
//
// Account storage is pluggable (memory, PostgreSQL, MongoDB). Session state
// lives elsewhere.
package identity
