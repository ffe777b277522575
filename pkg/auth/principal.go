package auth

import (
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/google/uuid"
)

// Principal is the authenticated caller an engine operation runs on behalf of.
type Principal struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CompanyID *uuid.UUID
}

// PrincipalFromClaims converts verified token claims.
func PrincipalFromClaims(claims *AccessTokenClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{UserID: claims.UserID, Role: claims.Role, CompanyID: claims.CompanyID}
}

// IsOperator reports whether the caller is platform staff.
func (p Principal) IsOperator() bool {
	return p.Role.IsOperator()
}

// CanActForCompany reports whether the caller may read or move money for companyID.
func (p Principal) CanActForCompany(companyID uuid.UUID) bool {
	if p.IsOperator() {
		return true
	}
	return p.Role == enums.ActorRoleVendor && p.CompanyID != nil && *p.CompanyID == companyID
}

// ActorRef renders the principal for outbox envelopes.
func (p Principal) ActorRef() *outbox.ActorRef {
	if p.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: p.UserID, Role: p.Role, CompanyID: p.CompanyID}
}

// ScopeCompany resolves the company a read is limited to. Vendors always read
// their own company and may not name another one; operators pass requested
// through, where nil means every company.
func (p Principal) ScopeCompany(requested *uuid.UUID) (*uuid.UUID, bool) {
	if p.IsOperator() {
		return requested, true
	}
	if p.Role != enums.ActorRoleVendor || p.CompanyID == nil {
		return nil, false
	}
	if requested != nil && *requested != *p.CompanyID {
		return nil, false
	}
	own := *p.CompanyID
	return &own, true
}
