package jwttoken

import (
	"impactledger/pkg/domain"
	authmw "impactledger/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService to the bearer middleware.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		Principal: domain.Address(claims.Subject),
		JTI:       claims.ID,
	}, nil
}
