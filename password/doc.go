// Package password provides a username and password grant strategy.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes still verify. [Hasher.NeedsRehash] reports them, and
// Argon2id hashes made with weaker parameters, so a [Grant] configured
// [WithRehash] can upgrade them on the next successful login.
//
// # What this package must NOT do
//
//   - Persist accounts. Callers supply a [UserStore].
//   - Log plaintext passwords or hashes.
package password
