// Package auth issues and verifies agent API tokens and checks admin
// credentials.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const agentTokenTTL = 12 * time.Hour

// AgentClaims is the payload of an agent token.
type AgentClaims struct {
	AgentID uuid.UUID `json:"agent_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies agent tokens.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("agent token secret is required")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// IssueAgentToken returns a signed token for the agent.
func (t *TokenIssuer) IssueAgentToken(agentID uuid.UUID) (string, error) {
	now := time.Now()
	claims := AgentClaims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(agentTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAgentToken parses and validates a token, returning the agent ID.
func (t *TokenIssuer) VerifyAgentToken(tokenString string) (uuid.UUID, error) {
	claims := &AgentClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.AgentID == uuid.Nil {
		return uuid.Nil, ErrInvalidToken
	}
	return claims.AgentID, nil
}

// CheckAdminCredentials compares the submitted credentials against the
// configured pair in constant time.
func CheckAdminCredentials(email, password, wantEmail, wantPassword string) bool {
	if wantEmail == "" || wantPassword == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(wantEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPassword)) == 1
	return emailOK && passwordOK
}
