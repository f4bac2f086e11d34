package module

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

// HashModule computes hex digests of the input passed to Init, once, at
// Init time (the scanner passes an empty input per stream). Stateless:
// Init needs no hint and its output can safely be shared across streams
// scanning the same bytes, though per spec §4.9 it is still initialised
// per stream like every other module for uniformity.
//
// Grounded in the teacher's own use of crypto/sha1 and crypto/sha256 for
// blob/structural identifiers (pkg/types/blobid.go, pkg/validator/cache.go).
type HashModule struct{}

func (HashModule) Name() string { return "hash" }

func (HashModule) Init(input []byte, hint string) (Fields, error) {
	md5Sum := md5.Sum(input)
	sha1Sum := sha1.Sum(input)
	sha256Sum := sha256.Sum256(input)
	return Fields{
		"md5":    String(hex.EncodeToString(md5Sum[:])),
		"sha1":   String(hex.EncodeToString(sha1Sum[:])),
		"sha256": String(hex.EncodeToString(sha256Sum[:])),
	}, nil
}
