package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

var (
	ErrMissingUser    = errors.New("token missing user id")
	ErrMissingCompany = errors.New("vendor tokens require a company id")
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CompanyID *uuid.UUID
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. Vendors carry
// the company they act for.
type AccessTokenClaims struct {
	UserID    uuid.UUID       `json:"user_id"`
	Role      enums.ActorRole `json:"role"`
	CompanyID *uuid.UUID      `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; the jwt parser calls it
// through jwt.ClaimsValidator, and minting calls it before signing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if c.Role == enums.ActorRoleVendor && c.CompanyID == nil {
		return ErrMissingCompany
	}
	return nil
}

var _ jwt.ClaimsValidator = AccessTokenClaims{}
