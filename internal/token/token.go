package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/hkdf"
)

// MinKeyLength is the minimum accepted length of the signing secret in bytes.
const MinKeyLength = 32

const (
	nonceLength = 21
	keyInfo     = "filegate verification token v1"
)

var (
	ErrWeakKey          = errors.New("signing key is missing or shorter than 32 bytes")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
)

// Token is a signed, time-boxed claim binding a user to a file.
type Token struct {
	UserID    string
	FileRef   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
	Signature []byte
}

// Expired reports whether the token is no longer valid at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type claims struct {
	FileRef string `json:"file"`
	jwt.RegisteredClaims
}

// Codec issues, serializes and parses verification tokens.
type Codec struct {
	key      []byte
	method   *jwt.SigningMethodHMAC
	parser   *jwt.Parser
	newNonce func() string
	now      func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source used to stamp issued tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec derives the HMAC key from secret and returns a ready codec.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) < MinKeyLength {
		return nil, ErrWeakKey
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	newNonce, err := nanoid.Standard(nonceLength)
	if err != nil {
		return nil, fmt.Errorf("nonce generator: %w", err)
	}

	c := &Codec{
		key:    key,
		method: jwt.SigningMethodHS256,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
		newNonce: newNonce,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issue creates a new signed token for userID and fileRef valid for period.
func (c *Codec) Issue(userID, fileRef string, period time.Duration) (*Token, error) {
	issuedAt := c.now().Truncate(time.Second)

	t := &Token{
		UserID:    userID,
		FileRef:   fileRef,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(period),
		Nonce:     c.newNonce(),
	}

	signed, err := c.Serialize(t)
	if err != nil {
		return nil, err
	}

	sig, err := c.parser.DecodeSegment(signed[strings.LastIndexByte(signed, '.')+1:])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	t.Signature = sig

	return t, nil
}

// Serialize encodes t as a URL-safe compact string carrying all fields and the signature.
func (c *Codec) Serialize(t *Token) (string, error) {
	jt := jwt.NewWithClaims(c.method, &claims{
		FileRef: t.FileRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.UserID,
			ID:        t.Nonce,
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
	})

	signed, err := jt.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Parse verifies the signature of raw before decoding any claim.
// Expiry is not checked here; that is a business rule of the caller.
func (c *Codec) Parse(raw string) (*Token, error) {
	idx := strings.LastIndexByte(raw, '.')
	if idx <= 0 || idx == len(raw)-1 {
		return nil, ErrMalformedToken
	}

	sig, err := c.parser.DecodeSegment(raw[idx+1:])
	if err != nil {
		return nil, ErrMalformedToken
	}

	// hmac.Equal inside Verify keeps the comparison constant-time.
	if err = c.method.Verify(raw[:idx], sig, c.key); err != nil {
		return nil, ErrInvalidSignature
	}

	var cl claims
	if _, err = c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	if cl.Subject == "" || cl.ID == "" || cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}

	return &Token{
		UserID:    cl.Subject,
		FileRef:   cl.FileRef,
		IssuedAt:  cl.IssuedAt.Time,
		ExpiresAt: cl.ExpiresAt.Time,
		Nonce:     cl.ID,
		Signature: sig,
	}, nil
}
