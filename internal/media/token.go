package media

import (
	"errors"
	"time"

	"livelinks-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService mints room-scoped media tokens: short-lived JWTs the SFU
// verifies on join. One token grants one identity access to one room.
type TokenService struct {
	apiKey    string
	apiSecret []byte
	wsURL     string
	ttl       time.Duration
}

// GrantClaims is the media token claims shape. Room and identity scope the
// grant; the publish/subscribe flags bound what the holder may do.
type GrantClaims struct {
	jwt.RegisteredClaims

	Room         string `json:"room"`
	Identity     string `json:"identity"`
	Name         string `json:"name,omitempty"`
	CanPublish   bool   `json:"can_publish"`
	CanSubscribe bool   `json:"can_subscribe"`
}

func NewTokenService(cfg config.MediaConfig) (*TokenService, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("media api key and secret are required")
	}
	if cfg.WSURL == "" {
		return nil, errors.New("media ws url is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenService{
		apiKey:    cfg.APIKey,
		apiSecret: []byte(cfg.APISecret),
		wsURL:     cfg.WSURL,
		ttl:       ttl,
	}, nil
}

// WSURL is the endpoint clients dial with a minted token.
func (s *TokenService) WSURL() string { return s.wsURL }

// Mint issues a publish+subscribe credential for a call participant.
func (s *TokenService) Mint(now time.Time, roomName, identity, displayName string) (Credential, error) {
	if roomName == "" || identity == "" {
		return Credential{}, ErrInvalidArgument
	}

	claims := GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Room:         roomName,
		Identity:     identity,
		Name:         displayName,
		CanPublish:   true,
		CanSubscribe: true,
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.apiSecret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: tok, URL: s.wsURL}, nil
}

// Verify parses and validates a minted token. The SFU side of the boundary;
// also used by tests to pin the claims shape.
func (s *TokenService) Verify(tokenString string, now time.Time) (GrantClaims, error) {
	var claims GrantClaims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(s.apiKey),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.apiSecret, nil
	}); err != nil {
		return GrantClaims{}, err
	}

	if claims.Room == "" {
		return GrantClaims{}, errors.New("room missing")
	}
	if claims.Identity == "" {
		return GrantClaims{}, errors.New("identity missing")
	}
	return claims, nil
}
