package utils

import (
	"strings"
	"testing"
)

func TestHashPassword_Salted(t *testing.T) {
	hash1, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	hash2, _ := HashPassword("admin123")

	if hash1 == "admin123" || !strings.HasPrefix(hash1, "$2a$") {
		t.Errorf("hash = %q, expected a bcrypt hash", hash1)
	}
	if hash1 == hash2 {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("x", 73)); err == nil {
		t.Error("passwords over 72 bytes should be rejected")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, _ := HashPassword("on-call-2025")

	tests := []struct {
		name     string
		password string
		hash     string
		expected bool
	}{
		{"match", "on-call-2025", hash, true},
		{"wrong password", "on-call-2024", hash, false},
		{"case sensitive", "ON-CALL-2025", hash, false},
		{"empty password", "", hash, false},
		{"malformed hash", "on-call-2025", "not-a-hash", false},
		{"empty hash", "on-call-2025", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckPassword(tt.password, tt.hash); got != tt.expected {
				t.Errorf("CheckPassword(%q) = %v, expected %v", tt.password, got, tt.expected)
			}
		})
	}
}
