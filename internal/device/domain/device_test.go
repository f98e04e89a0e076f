package domain

import "testing"

func ptr(s string) *string { return &s }

func TestNewFingerprint_EmptyIsNil(t *testing.T) {
	f := NewFingerprint("", "")
	if f.UserAgent != nil || f.IPAddress != nil {
		t.Fatalf("empty parts should be nil, got %+v", f)
	}
	f = NewFingerprint("curl/8", "10.0.0.1")
	if f.UserAgent == nil || *f.UserAgent != "curl/8" || f.IPAddress == nil || *f.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected fingerprint %+v", f)
	}
}

func TestFingerprint_Matches(t *testing.T) {
	tests := []struct {
		name string
		fp   Fingerprint
		ua   *string
		ip   *string
		want bool
	}{
		{"both nil", NewFingerprint("", ""), nil, nil, true},
		{"exact", NewFingerprint("ua", "1.1.1.1"), ptr("ua"), ptr("1.1.1.1"), true},
		{"different ip", NewFingerprint("ua", "1.1.1.1"), ptr("ua"), ptr("2.2.2.2"), false},
		{"nil vs set ua", NewFingerprint("", "1.1.1.1"), ptr("ua"), ptr("1.1.1.1"), false},
		{"set vs nil ip", NewFingerprint("ua", "1.1.1.1"), ptr("ua"), nil, false},
		{"ua only", NewFingerprint("ua", ""), ptr("ua"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fp.Matches(tt.ua, tt.ip); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprint_String(t *testing.T) {
	if got := NewFingerprint("", "").String(); got != "-@-" {
		t.Errorf("String = %q", got)
	}
}
