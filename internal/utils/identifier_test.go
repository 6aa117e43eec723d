package utils

import (
	"regexp"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Payments Gateway", "payments-gateway"},
		{"  API -- Uptime  ", "api-uptime"},
		{"Login/SSO (prod)", "login-sso-prod"},
		{"", ""},
		{"!!!", ""},
		{"ALLCAPS123", "allcaps123"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.expected {
			t.Errorf("Slugify(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestSlugify_Truncates(t *testing.T) {
	long := "aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd eeeeeeeeee ffffffffff gggggggggg"
	got := Slugify(long)
	if len(got) > maxSlugLength {
		t.Errorf("slug length = %d, expected <= %d", len(got), maxSlugLength)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("slug should not end with hyphen: %q", got)
	}
}

func TestGenerateIdentifier(t *testing.T) {
	pattern := regexp.MustCompile(`^payments-gateway-[0-9a-f]{6}$`)
	id := GenerateIdentifier("Payments Gateway")
	if !pattern.MatchString(id) {
		t.Errorf("GenerateIdentifier() = %q, does not match %s", id, pattern)
	}

	if GenerateIdentifier("Payments Gateway") == id {
		t.Error("identifiers should carry a random suffix")
	}
}

func TestGenerateIdentifier_EmptyName(t *testing.T) {
	pattern := regexp.MustCompile(`^entry-[0-9a-f]{6}$`)
	if id := GenerateIdentifier("   "); !pattern.MatchString(id) {
		t.Errorf("GenerateIdentifier() = %q, expected entry-xxxxxx", id)
	}
}
