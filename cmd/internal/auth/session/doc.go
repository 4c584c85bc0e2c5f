// Package session coordinates live logins for the feedback system.
//
// Each account holds at most one Session at a time. A Session records the
// digest of the credential token that created it, which makes the session
// table the revocation authority: overwriting a Session instantly invalidates
// every earlier token for that account, regardless of token expiry.
//
// A Session may be linked to one realtime channel. A channel disconnect only
// unlinks it; the Session itself survives until logout, idle expiry, forced
// overwrite, or an administrative evict-all.
//
// All state is in-memory and process-local. Every Coordinator entry point
// runs under one mutex.
package session
