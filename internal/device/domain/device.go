// Package domain describes the device a session was issued to.
package domain

// Fingerprint identifies "the same device" by its user agent and IP address. Either part may
// be nil; two fingerprints with both parts nil are equal.
type Fingerprint struct {
	UserAgent *string
	IPAddress *string
}

// NewFingerprint builds a Fingerprint, treating empty strings as unknown (nil).
func NewFingerprint(userAgent, ip string) Fingerprint {
	return Fingerprint{UserAgent: optional(userAgent), IPAddress: optional(ip)}
}

// Matches reports whether the stored pair equals f, with nil matching only nil.
func (f Fingerprint) Matches(userAgent, ip *string) bool {
	return equal(f.UserAgent, userAgent) && equal(f.IPAddress, ip)
}

// String is for logs.
func (f Fingerprint) String() string {
	return deref(f.UserAgent) + "@" + deref(f.IPAddress)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
