package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
)

// CacheKey is the stable identifier of a cached asset.
// It is the lowercase hex SHA-256 digest of the canonical source URL.
type CacheKey string

// String returns the key as a plain string
func (k CacheKey) String() string {
	return string(k)
}

// Valid reports whether the key looks like a SHA-256 hex digest
func (k CacheKey) Valid() bool {
	if len(k) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(k))
	return err == nil
}

// Shard returns the two-character directory prefix used on disk
func (k CacheKey) Shard() string {
	if len(k) < 2 {
		return "00"
	}
	return string(k[:2])
}

// KeyFor derives the cache key for a source URL.
// The same URL always yields the same key, across calls and restarts.
func KeyFor(rawURL string) CacheKey {
	sum := sha256.Sum256([]byte(CanonicalURL(rawURL)))
	return CacheKey(hex.EncodeToString(sum[:]))
}

// CanonicalURL normalizes a URL before hashing.
// Scheme and host are lower-cased, default ports and fragments dropped.
// Path and query are kept verbatim since servers may treat them case-sensitively.
// Input that does not parse as an absolute URL is only trimmed.
func CanonicalURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
