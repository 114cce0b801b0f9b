package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	passwordSaltLen   = 16
	credentialSep     = ":"
	credentialDigestN = sha256.Size
)

var ErrMalformedCredential = errors.New("malformed password credential")

// Credential is the decoded form of a stored password hash.
type Credential struct {
	Salt   []byte
	Digest []byte
}

// String encodes the credential as base64(salt) + ":" + base64(digest).
// The layout is persisted in the accounts table and must not change.
func (c Credential) String() string {
	return base64.StdEncoding.EncodeToString(c.Salt) + credentialSep + base64.StdEncoding.EncodeToString(c.Digest)
}

// HashPassword returns the encoded credential for password under a fresh
// random salt. It fails only when the system entropy source does.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read password salt: %w", err)
	}
	return Credential{Salt: salt, Digest: passwordDigest(salt, password)}.String(), nil
}

// VerifyPassword reports whether password matches the encoded credential.
// Malformed credentials never match.
func VerifyPassword(encoded, password string) bool {
	cred, err := ParseCredential(encoded)
	if err != nil {
		return false
	}
	actual := passwordDigest(cred.Salt, password)
	return subtle.ConstantTimeCompare(actual, cred.Digest) == 1
}

// ParseCredential decodes a stored credential, returning
// ErrMalformedCredential for anything not in the salt:digest layout.
func ParseCredential(encoded string) (Credential, error) {
	saltPart, digestPart, ok := strings.Cut(encoded, credentialSep)
	if !ok || saltPart == "" || digestPart == "" {
		return Credential{}, ErrMalformedCredential
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil || len(salt) == 0 {
		return Credential{}, ErrMalformedCredential
	}
	digest, err := base64.StdEncoding.DecodeString(digestPart)
	if err != nil || len(digest) != credentialDigestN {
		return Credential{}, ErrMalformedCredential
	}
	return Credential{Salt: salt, Digest: digest}, nil
}

func passwordDigest(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}
