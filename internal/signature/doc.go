// Package signature authenticates webhook deliveries signed with a shared
// secret.
//
// Senders put an HMAC of the raw request body in the X-Hub-Signature header:
//
//	X-Hub-Signature: sha256=3a8f7b2c...
//
// The part before "=" names the digest algorithm, the part after is the
// hex-encoded HMAC. Verification runs in a fixed order, cheapest first:
//
//  1. No secret configured: every request is accepted.
//  2. Header missing: malformed request.
//  3. Header not exactly "<algorithm>=<hex>": malformed request.
//  4. Algorithm blacklisted or not in the digest registry: malformed request.
//  5. HMAC mismatch (constant-time comparison): unauthorized.
//
// The blacklist keeps senders from downgrading verification to a checksum
// such as CRC32 or to a broken digest such as MD5. Neither the secret nor any
// digest value is logged or included in returned errors.
package signature
