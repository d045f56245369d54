package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token has expired")
)

const Issuer = "ms-go-account"

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (c *Claims) AccountID() string {
	return c.Subject
}

// AccessSigner mints and validates stateless HS256 access tokens.
type AccessSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type AccessSignerOption func(*AccessSigner)

func WithClock(now func() time.Time) AccessSignerOption {
	return func(s *AccessSigner) {
		if now != nil {
			s.now = now
		}
	}
}

func NewAccessSigner(secret string, ttl time.Duration, opts ...AccessSignerOption) *AccessSigner {
	s := &AccessSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AccessSigner) TTL() time.Duration {
	return s.ttl
}

func (s *AccessSigner) Mint(accountID, username string, issuedAt time.Time) (string, error) {
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse returns ErrExpired only for tokens whose signature is valid; anything
// else that fails is ErrInvalid.
func (s *AccessSigner) Parse(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrInvalid
	}

	if _, err = s.parse(tokenString, jwt.WithoutClaimsValidation()); err != nil {
		return nil, ErrInvalid
	}
	return nil, ErrExpired
}

func (s *AccessSigner) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
