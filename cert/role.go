package cert

// Role is the declared usage of a certificate. It fixes where in a chain the
// certificate may appear and which roles it may issue.
type Role string

const (
	RoleRootCA         Role = "root-ca"
	RoleIntermediateCA Role = "intermediate-ca"
	RoleNodeCA         Role = "node-ca"
	RoleNodeIdentity   Role = "node-identity"
	RoleNetworkMap     Role = "network-map"
)

var issuable = map[Role][]Role{
	RoleRootCA:         {RoleIntermediateCA, RoleNodeCA, RoleNetworkMap},
	RoleIntermediateCA: {RoleIntermediateCA, RoleNodeCA, RoleNetworkMap},
	RoleNodeCA:         {RoleNodeIdentity},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRootCA, RoleIntermediateCA, RoleNodeCA, RoleNodeIdentity, RoleNetworkMap:
		return true
	default:
		return false
	}
}

// IsCA reports whether r may issue certificates at all.
func (r Role) IsCA() bool {
	return len(issuable[r]) > 0
}

// CanIssue reports whether a certificate with role issuer may sign one with role subject.
func CanIssue(issuer, subject Role) bool {
	for _, r := range issuable[issuer] {
		if r == subject {
			return true
		}
	}
	return false
}
