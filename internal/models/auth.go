package models

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims are the claims carried by operator and service tokens
type OperatorClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
