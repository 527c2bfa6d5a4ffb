package model

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TokenDigest returns the hex encoded BLAKE2b-256 digest of an access
// token. Unique indexes and token lookups use the digest so the raw
// secret never appears in an index. The digest is deterministic: the same
// token always produces the same value across processes and backends.
func TokenDigest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
