package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	agentID := uuid.New()
	token, err := issuer.IssueAgentToken(agentID)
	if err != nil {
		t.Fatalf("IssueAgentToken() error = %v", err)
	}

	got, err := issuer.VerifyAgentToken(token)
	if err != nil {
		t.Fatalf("VerifyAgentToken() error = %v", err)
	}
	if got != agentID {
		t.Errorf("VerifyAgentToken() = %v, want %v", got, agentID)
	}
}

func TestVerifyAgentTokenRejectsBadTokens(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	other, err := NewTokenIssuer("other-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	foreign, err := other.IssueAgentToken(uuid.New())
	if err != nil {
		t.Fatalf("IssueAgentToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong secret", token: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := issuer.VerifyAgentToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("VerifyAgentToken(%q) error = %v, want ErrInvalidToken", tt.token, err)
			}
		})
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer(""); err == nil {
		t.Error("NewTokenIssuer(\"\") expected error")
	}
}

func TestCheckAdminCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		email    string
		password string
		want     bool
	}{
		{name: "valid", email: "admin@lab.example", password: "hunter2", want: true},
		{name: "wrong password", email: "admin@lab.example", password: "nope", want: false},
		{name: "wrong email", email: "other@lab.example", password: "hunter2", want: false},
		{name: "both empty", email: "", password: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := CheckAdminCredentials(tt.email, tt.password, "admin@lab.example", "hunter2")
			if got != tt.want {
				t.Errorf("CheckAdminCredentials() = %v, want %v", got, tt.want)
			}
		})
	}

	if CheckAdminCredentials("", "", "", "") {
		t.Error("empty configured credentials must never authenticate")
	}
}
