// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string form:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Verification also accepts bcrypt hashes ($2a$, $2b$, $2y$) so accounts
// seeded by the legacy Node backend keep working. Such accounts are reported
// as needing a rehash.
//
// Hash strings are untrusted input during verification; Argon2id parameters
// far above the configured cost are refused.
package password
