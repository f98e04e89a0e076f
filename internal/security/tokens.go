package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMalformed is returned when a token cannot be parsed or its claims are unusable.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid is returned when the signature does not verify against the expected secret.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned for a correctly signed token past its exp. The claims are
	// returned alongside this error.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidTokenType is returned when a correctly signed token is of the other kind.
	ErrInvalidTokenType = errors.New("invalid token type")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID int64
	Email  string
	Role   string
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	UserID    int64
	SessionID string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret string
	// RefreshSecret falls back to AccessSecret when empty.
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock used for iat/exp; nil means time.Now.
	Now func() time.Time
}

// TokenCodec signs and verifies HS256 access and refresh JWTs. The two kinds use
// separate secrets and TTLs.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	sharedSecret  bool
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowF          func() time.Time
}

// NewTokenCodec returns a TokenCodec for cfg. AccessSecret is required and both TTLs must be positive.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("security: access token secret must be set")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("security: token TTLs must be positive")
	}
	refresh := cfg.RefreshSecret
	shared := false
	if refresh == "" {
		refresh = cfg.AccessSecret
		shared = true
	}
	nowF := cfg.Now
	if nowF == nil {
		nowF = time.Now
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(refresh),
		sharedSecret:  shared || cfg.RefreshSecret == cfg.AccessSecret,
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		nowF:          nowF,
	}, nil
}

// SharesSecret reports whether access and refresh tokens are signed with the same secret.
func (c *TokenCodec) SharesSecret() bool { return c.sharedSecret }

// AccessTTL returns the access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess issues an access token for claims and returns it with its expiry.
func (c *TokenCodec) SignAccess(claims AccessClaims) (string, time.Time, error) {
	return c.sign(tokenClaims{
		Type:   tokenTypeAccess,
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, c.accessSecret, c.accessTTL)
}

// SignRefresh issues a refresh token bound to claims.SessionID and returns it with its expiry.
func (c *TokenCodec) SignRefresh(claims RefreshClaims) (string, time.Time, error) {
	if claims.SessionID == "" {
		return "", time.Time{}, errors.New("security: refresh token requires a session id")
	}
	return c.sign(tokenClaims{
		Type:      tokenTypeRefresh,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	}, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess validates an access token. A correctly signed refresh token yields
// ErrInvalidTokenType. On ErrTokenExpired the claims are also returned.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	tc, err := c.parse(token, tokenTypeAccess)
	if tc == nil {
		return nil, err
	}
	return &AccessClaims{UserID: tc.UserID, Email: tc.Email, Role: tc.Role}, err
}

// VerifyRefresh validates a refresh token. A correctly signed access token yields
// ErrInvalidTokenType. On ErrTokenExpired the claims are also returned.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	tc, err := c.parse(token, tokenTypeRefresh)
	if tc == nil {
		return nil, err
	}
	return &RefreshClaims{UserID: tc.UserID, SessionID: tc.SessionID}, err
}

func (c *TokenCodec) sign(claims tokenClaims, secret []byte, ttl time.Duration) (string, time.Time, error) {
	jti, err := randomHex(16)
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.nowF().UTC()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   strconv.FormatInt(claims.UserID, 10),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// parse returns non-nil claims on success and alongside ErrTokenExpired.
func (c *TokenCodec) parse(token, wantType string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowF),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, c.keyFor, opts...)
	switch {
	case err == nil:
	case errors.Is(err, errUnknownTokenType):
		return nil, ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidIssuer):
		if claims.Type != wantType {
			return nil, ErrInvalidTokenType
		}
		return claims, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.Type != wantType {
		return nil, ErrInvalidTokenType
	}
	if claims.UserID <= 0 || (wantType == tokenTypeRefresh && claims.SessionID == "") {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

var errUnknownTokenType = errors.New("unknown token type")

// keyFor selects the secret by the token's declared type so that a token of the
// wrong kind still verifies and can be reported as ErrInvalidTokenType.
func (c *TokenCodec) keyFor(t *jwt.Token) (any, error) {
	claims, ok := t.Claims.(*tokenClaims)
	if !ok {
		return nil, errUnknownTokenType
	}
	switch claims.Type {
	case tokenTypeAccess:
		return c.accessSecret, nil
	case tokenTypeRefresh:
		return c.refreshSecret, nil
	default:
		return nil, errUnknownTokenType
	}
}
