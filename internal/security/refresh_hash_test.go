package security

import (
	"testing"
)

func TestHashRefreshToken(t *testing.T) {
	hash1 := HashRefreshToken("refresh-token-1")
	if hash1 != HashRefreshToken("refresh-token-1") {
		t.Error("HashRefreshToken not deterministic")
	}
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(hash1))
	}
	if hash1 == HashRefreshToken("refresh-token-2") {
		t.Error("HashRefreshToken produced same hash for different tokens")
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("issued-token")
	tests := []struct {
		name     string
		provided string
		stored   string
		want     bool
	}{
		{"match", "issued-token", stored, true},
		{"different token", "other-token", stored, false},
		{"longer stored hash", "issued-token", "a" + stored, false},
		{"same length different content", "issued-token", "0" + stored[1:], stored[0] == '0'},
		{"empty stored hash", "issued-token", "", false},
		{"empty inputs", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefreshTokenHashEqual(tt.provided, tt.stored); got != tt.want {
				t.Errorf("RefreshTokenHashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID: %v", err)
		}
		if len(id) != 64 {
			t.Fatalf("id length = %d, want 64", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}
