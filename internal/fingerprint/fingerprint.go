// Package fingerprint derives the tamper-evident identifier of a credential and
// the public verification URL built from it.
package fingerprint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	dErrors "certifier/pkg/domain-errors"
)

// Length is the number of hex characters in a fingerprint.
const Length = 64

var pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Input is the content a fingerprint binds to. Nonce makes re-issuing the same
// tuple produce a distinct fingerprint.
type Input struct {
	ParticipantRef string
	EventRef       string
	Title          string
	Type           string
	IssuedAt       time.Time
	Nonce          string
}

// Compute returns the lowercase hex SHA-256 over the canonical encoding of in.
// Fields are written in a fixed order, each as a length-prefixed name followed
// by a length-prefixed value, so no two distinct inputs share an encoding.
func Compute(in Input) string {
	h := sha256.New()
	fields := [...][2]string{
		{"participant", in.ParticipantRef},
		{"event", in.EventRef},
		{"title", in.Title},
		{"type", in.Type},
		{"issued_at", strconv.FormatInt(in.IssuedAt.UnixNano(), 10)},
		{"nonce", in.Nonce},
	}
	var lenBuf [8]byte
	for _, f := range fields {
		for _, part := range f {
			binary.BigEndian.PutUint64(lenBuf[:], uint64(len(part)))
			h.Write(lenBuf[:])
			h.Write([]byte(part))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewNonce returns 16 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Valid reports whether s is a well-formed fingerprint.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Parse normalizes and validates an externally supplied fingerprint.
func Parse(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !Valid(s) {
		return "", dErrors.New(dErrors.CodeValidation, "hash must be 64 hexadecimal characters")
	}
	return s, nil
}

// Service binds the public base URL used for verification links.
type Service struct {
	baseURL string
	nonce   func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithNonceSource overrides the nonce generator (tests).
func WithNonceSource(fn func() (string, error)) Option {
	return func(s *Service) {
		s.nonce = fn
	}
}

func New(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		nonce:   NewNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue draws a fresh nonce, computes the fingerprint and derives its
// verification URL.
func (s *Service) Issue(in Input) (fp, verificationURL string, err error) {
	if in.Nonce == "" {
		in.Nonce, err = s.nonce()
		if err != nil {
			return "", "", dErrors.Wrap(err, dErrors.CodeUnknown, "failed to generate fingerprint nonce")
		}
	}
	fp = Compute(in)
	return fp, s.VerificationURL(fp), nil
}

// VerificationURL returns baseURL + "/verify/" + fp.
func (s *Service) VerificationURL(fp string) string {
	return s.baseURL + "/verify/" + fp
}
