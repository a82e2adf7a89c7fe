package enums

// Capability names a single permission checked by the HTTP guard.
type Capability string

const (
	CapabilityDonationCreate Capability = "donation:create"
	CapabilityDonationRead   Capability = "donation:read"
	CapabilityInventoryRead  Capability = "inventory:read"
	CapabilityIssueCreate    Capability = "issue:create"
	CapabilityEmergencyIssue Capability = "emergency:issue"
	CapabilityAuditRead      Capability = "audit:read"
	CapabilityUsersManage    Capability = "users:manage"
	CapabilityStatsRead      Capability = "stats:read"
)

var validCapabilities = []Capability{
	CapabilityDonationCreate,
	CapabilityDonationRead,
	CapabilityInventoryRead,
	CapabilityIssueCreate,
	CapabilityEmergencyIssue,
	CapabilityAuditRead,
	CapabilityUsersManage,
	CapabilityStatsRead,
}

var roleCapabilities = map[UserRole][]Capability{
	UserRoleAdmin: validCapabilities,
	UserRoleDoctor: {
		CapabilityDonationCreate,
		CapabilityDonationRead,
		CapabilityInventoryRead,
		CapabilityIssueCreate,
		CapabilityEmergencyIssue,
		CapabilityStatsRead,
	},
	UserRoleCustomer: {
		CapabilityInventoryRead,
	},
}

// IsValid reports whether the value is a known Capability.
func (c Capability) IsValid() bool {
	for _, candidate := range validCapabilities {
		if candidate == c {
			return true
		}
	}
	return false
}

// Allows reports whether the role grants the capability. Unknown roles grant nothing.
func (r UserRole) Allows(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// CapabilitiesFor returns a copy of the capabilities granted to the role.
func CapabilitiesFor(r UserRole) []Capability {
	return append([]Capability(nil), roleCapabilities[r]...)
}
