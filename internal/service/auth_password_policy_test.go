package service

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid", password: "hunter22", wantErr: false},
		{name: "max_length", password: strings.Repeat("p", 36), wantErr: false},
		{name: "too_short", password: "short", wantErr: true},
		{name: "too_long", password: strings.Repeat("p", 37), wantErr: true},
		{name: "multibyte_counts_runes", password: "пароль12", wantErr: false},
	}
	for _, tc := range tests {
		err := validatePassword(tc.password)
		if tc.wantErr && !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("%s: expected ErrWeakPassword, got %v", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail("  Player@Example.COM ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "player@example.com" {
		t.Fatalf("expected lower-cased address, got %q", got)
	}

	for _, bad := range []string{"", "a@b", "no-at-sign", "Name <a@example.com>", strings.Repeat("a", 30) + "@example.com"} {
		if _, err := normalizeEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", bad, err)
		}
	}
}
