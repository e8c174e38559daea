package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	Cost = bcrypt.MinCost
	defer func() { Cost = bcrypt.DefaultCost }()

	hash, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("Hash() returned the plain text")
	}

	tests := []struct {
		name     string
		plain    string
		expected bool
	}{
		{"matching password", "correct horse battery", true},
		{"wrong password", "correct horse", false},
		{"empty password", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.plain, hash); got != tt.expected {
				t.Errorf("Verify(%q) = %v, want %v", tt.plain, got, tt.expected)
			}
		})
	}
}

func TestHashTooLong(t *testing.T) {
	Cost = bcrypt.MinCost
	defer func() { Cost = bcrypt.DefaultCost }()

	if _, err := Hash(strings.Repeat("a", MaxLength+1)); err == nil {
		t.Error("Hash() should reject passwords longer than 72 bytes")
	}
}
