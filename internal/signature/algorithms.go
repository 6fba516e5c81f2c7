package signature

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/md4"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// registry lists every digest usable as an HMAC primitive, keyed by its
// canonical (hashlib-style) name.
var registry = map[string]func() hash.Hash{
	"sha1":       sha1.New,
	"sha224":     sha256.New224,
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512_224": sha512.New512_224,
	"sha512_256": sha512.New512_256,
	"sha3_224":   sha3.New224,
	"sha3_256":   sha3.New256,
	"sha3_384":   sha3.New384,
	"sha3_512":   sha3.New512,
	"blake2b":    unkeyed(blake2b.New512),
	"blake2b256": unkeyed(blake2b.New256),
	"blake2b384": unkeyed(blake2b.New384),
	"blake2s":    unkeyed(blake2s.New256),
	"blake3":     func() hash.Hash { return blake3.New() },
	"ripemd160":  ripemd160.New,
	"md5":        md5.New,
	"md4":        md4.New,
}

// folded maps a name with separators removed to its canonical name, so
// "SHA-256" and "sha3-256" resolve like "sha256" and "sha3_256".
var folded = func() map[string]string {
	m := make(map[string]string, len(registry))
	for name := range registry {
		m[fold(name)] = name
	}
	return m
}()

func fold(name string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(name))
}

// unkeyed adapts a keyed BLAKE2 constructor. A nil key never errors.
func unkeyed(newFn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := newFn(nil)
		if err != nil {
			panic("signature: unkeyed blake2: " + err.Error())
		}
		return h
	}
}

// Lookup resolves an algorithm name to its canonical name and constructor.
// Matching is case-insensitive and ignores "-" and "_".
func Lookup(name string) (string, func() hash.Hash, bool) {
	canonical, ok := folded[fold(name)]
	if !ok {
		return "", nil, false
	}
	return canonical, registry[canonical], true
}

// Algorithms returns the canonical names of all registered digests, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
