package security

import "time"

// NewTestTokenCodec returns a TokenCodec with fixed test secrets, 15m access and 24h refresh TTLs.
// now may be nil. For unit tests only.
func NewTestTokenCodec(now func() time.Time) *TokenCodec {
	c, err := NewTokenCodec(TokenConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		Issuer:        "test-issuer",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Now:           now,
	})
	if err != nil {
		panic(err)
	}
	return c
}
