// Package signature computes the X-Hamustro-Signature value a collector
// expects for a serialized body and a timestamp.
//
// Both generations hash the body first and then hash
// "<timestamp>|<hex md5 of body>|<shared secret>":
//
//	V1: hex(md5(...))
//	V2: base64(sha256(...))
//
// A signature is only valid for the exact timestamp string it was built
// with. V1 and V2 values are never interchangeable.
package signature

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"hamustro/models"
)

var (
	ErrInvalidSecret  = errors.New("invalid shared secret: must not be empty")
	ErrUnknownVersion = errors.New("unknown signature version")
)

type Signer struct {
	version models.Version
	secret  string
}

func New(version models.Version, secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	if !version.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	return &Signer{version: version, secret: secret}, nil
}

func (s *Signer) Version() models.Version {
	return s.version
}

// Sign returns the signature of body for the given timestamp.
func (s *Signer) Sign(body []byte, timestamp string) string {
	switch s.version {
	case models.V1:
		return hex.EncodeToString(chain(md5.New(), body, timestamp, s.secret))
	default:
		return base64.StdEncoding.EncodeToString(chain(sha256.New(), body, timestamp, s.secret))
	}
}

// Sign is a one-shot helper around New and (*Signer).Sign.
func Sign(version models.Version, body []byte, timestamp, secret string) (string, error) {
	s, err := New(version, secret)
	if err != nil {
		return "", err
	}
	return s.Sign(body, timestamp), nil
}

// BodyDigest is the lowercase hex md5 of a serialized body.
func BodyDigest(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

func chain(h hash.Hash, body []byte, timestamp, secret string) []byte {
	io.WriteString(h, timestamp)
	io.WriteString(h, "|")
	io.WriteString(h, BodyDigest(body))
	io.WriteString(h, "|")
	io.WriteString(h, secret)
	return h.Sum(nil)
}
