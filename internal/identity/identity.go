// Package identity verifies sessions minted by the external identity
// provider and decides which of them may use the app.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrEmailNotVerified = errors.New("email address is not verified")
)

// Claims is the token payload issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Anonymous     bool   `json:"anonymous"`
	Registering   bool   `json:"registering"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Session is a verified, not yet admitted, sign-in
type Session struct {
	UID           string
	Email         string
	EmailVerified bool
	Anonymous     bool
	Registering   bool // sign-up flow still running; verification mail not yet confirmed
	Name          string
	Picture       string
}

// User is an admitted session
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Anonymous   bool   `json:"isAnonymous"`
}

// Admit turns a session into a user. Anonymous sessions, verified emails and
// sessions in the middle of registration are let in.
func Admit(s Session) (*User, error) {
	if !s.Registering && !s.EmailVerified && !s.Anonymous {
		return nil, ErrEmailNotVerified
	}

	return &User{
		UID:         s.UID,
		Email:       s.Email,
		DisplayName: s.Name,
		PhotoURL:    s.Picture,
		Anonymous:   s.Anonymous,
	}, nil
}

// Verifier checks HS256 tokens signed with a shared secret
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for s valid for ttl
func (v *Verifier) IssueToken(s Session, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         s.Email,
		EmailVerified: s.EmailVerified,
		Anonymous:     s.Anonymous,
		Registering:   s.Registering,
		Name:          s.Name,
		Picture:       s.Picture,
	})

	return token.SignedString(v.secret)
}

// Verify validates the signature and expiry of tokenString
func (v *Verifier) Verify(tokenString string) (Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}

	return Session{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Anonymous:     claims.Anonymous,
		Registering:   claims.Registering,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// PeekClaims decodes a token without checking its signature. Clients use it
// to cache the current user; it must never gate access.
func PeekClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
