package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — claims токена оператора Console API.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "approvals.read": true
	jwt.RegisteredClaims
}

// ScopeApprovalsRead — чтение заявок через Console API.
const ScopeApprovalsRead = "approvals.read"
