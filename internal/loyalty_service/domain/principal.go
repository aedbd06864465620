package domain

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleSuperAdmin }

// CanRequestPayout reports whether the role holds a withdrawable wallet.
func (p Principal) CanRequestPayout() bool {
	return p.Role == RoleAgent || p.Role == RoleMember
}

// OwnsMerchant reports whether the caller is the merchant account behind m.
func (p Principal) OwnsMerchant(m *Merchant) bool {
	return p.Role == RoleMerchant && m != nil && m.OwnerUserID == p.UserID
}

// CanView reports whether the caller may read data belonging to userID.
func (p Principal) CanView(userID string) bool {
	return p.IsAdmin() || p.UserID == userID
}
