package enums

import "fmt"

// AuditAction tags an audit log entry.
type AuditAction string

const (
	AuditActionAuthRegister   AuditAction = "auth.register"
	AuditActionAuthLogin      AuditAction = "auth.login"
	AuditActionAuthLogout     AuditAction = "auth.logout"
	AuditActionDonationCreate AuditAction = "donation.create"
	AuditActionIssueOK        AuditAction = "issue.ok"
	AuditActionIssueSuggest   AuditAction = "issue.suggest"
	AuditActionEmergencyOK    AuditAction = "emergency.ok"
	AuditActionEmergencyEmpty AuditAction = "emergency.empty"
	AuditActionUserCreate     AuditAction = "user.create"
	AuditActionUserUpdate     AuditAction = "user.update"
	AuditActionUserDelete     AuditAction = "user.delete"
)

var validAuditActions = []AuditAction{
	AuditActionAuthRegister,
	AuditActionAuthLogin,
	AuditActionAuthLogout,
	AuditActionDonationCreate,
	AuditActionIssueOK,
	AuditActionIssueSuggest,
	AuditActionEmergencyOK,
	AuditActionEmergencyEmpty,
	AuditActionUserCreate,
	AuditActionUserUpdate,
	AuditActionUserDelete,
}

// AllAuditActions returns every audit action in declaration order.
func AllAuditActions() []AuditAction {
	return append([]AuditAction(nil), validAuditActions...)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}

// AuditEntityType names the kind of record an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityUser      AuditEntityType = "User"
	AuditEntityDonation  AuditEntityType = "Donation"
	AuditEntityInventory AuditEntityType = "Inventory"
)

var validAuditEntityTypes = []AuditEntityType{
	AuditEntityUser,
	AuditEntityDonation,
	AuditEntityInventory,
}

// AllAuditEntityTypes returns every entity type in declaration order.
func AllAuditEntityTypes() []AuditEntityType {
	return append([]AuditEntityType(nil), validAuditEntityTypes...)
}

// IsValid reports whether the value is a known AuditEntityType.
func (e AuditEntityType) IsValid() bool {
	for _, candidate := range validAuditEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
