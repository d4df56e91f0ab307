// Package tokens signs and verifies the short-lived tokens mailed to users
// and handed out by the API. Every token carries the purpose it was issued
// for, so a confirmation token can never be replayed as a reset token.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of every token unless the caller asks otherwise.
const DefaultTTL = time.Hour

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

type Purpose string

const (
	PurposeConfirm     Purpose = "confirm"
	PurposeReset       Purpose = "reset"
	PurposeChangeEmail Purpose = "change_email"
	PurposeAuth        Purpose = "auth"
)

// Claim is the payload of a token. Each variant reports a fixed purpose.
type Claim interface {
	Purpose() Purpose
}

type Confirmation struct {
	UserID uint `json:"confirm"`
}

type Reset struct {
	UserID uint `json:"reset"`
}

type EmailChange struct {
	UserID   uint   `json:"change_email"`
	NewEmail string `json:"new_email"`
}

type AuthSession struct {
	UserID uint `json:"id"`
}

func (Confirmation) Purpose() Purpose { return PurposeConfirm }
func (Reset) Purpose() Purpose        { return PurposeReset }
func (EmailChange) Purpose() Purpose  { return PurposeChangeEmail }
func (AuthSession) Purpose() Purpose  { return PurposeAuth }

type envelope[C any] struct {
	Purpose Purpose `json:"purpose"`
	Payload C       `json:"payload"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with one HMAC secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue signs claim and returns the token with its expiry.
func (c *Codec) Issue(claim Claim, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expireAt := now.Add(ttl)

	env := envelope[Claim]{
		Purpose: claim.Purpose(),
		Payload: claim,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, env).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expireAt, nil
}

// Verify decodes token as a C. It fails closed: anything other than a
// well-formed, unexpired HS256 token of C's purpose signed with this codec's
// secret is rejected.
func Verify[C Claim](c *Codec, token string) (C, error) {
	var zero C
	env := &envelope[C]{}

	parsed, err := jwt.ParseWithClaims(token, env, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return zero, ErrExpired
		}
		return zero, ErrInvalid
	}
	if !parsed.Valid || env.Purpose != zero.Purpose() {
		return zero, ErrInvalid
	}
	return env.Payload, nil
}
