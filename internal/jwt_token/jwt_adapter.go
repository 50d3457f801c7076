package jwttoken

import (
	"provenance/internal/platform/middleware"
)

// MiddlewareValidator lets RequireAuth validate tokens without importing this
// package. The subject it reports is the parsed account id, so surrounding
// whitespace in a token's sub claim never reaches the ledger.
type MiddlewareValidator struct {
	service *JWTService
}

func NewMiddlewareValidator(service *JWTService) *MiddlewareValidator {
	return &MiddlewareValidator{service: service}
}

func (v *MiddlewareValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	claims, err := v.service.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	account, err := claims.AccountID()
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{Subject: account.String(), JTI: claims.ID}, nil
}
