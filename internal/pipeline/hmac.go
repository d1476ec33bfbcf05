package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// ErrEmptyKey is returned by HMACSigner for an empty key.
var ErrEmptyKey = errors.New("empty signing key")

// HMACSigner returns a Signer producing HMAC-SHA256 over the digest. The key
// is copied.
func HMACSigner(key []byte) Signer {
	k := append([]byte(nil), key...)

	return SignerFunc(func(digest []byte) ([]byte, error) {
		if len(k) == 0 {
			return nil, ErrEmptyKey
		}

		mac := hmac.New(sha256.New, k)
		mac.Write(digest)

		return mac.Sum(nil), nil
	})
}
