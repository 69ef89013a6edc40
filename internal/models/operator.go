package models

type OperatorRole string

const (
	RoleAgent OperatorRole = "agent"
	RoleAdmin OperatorRole = "admin"
)

// Operator is the authenticated caller of the operator API, taken from JWT claims.
type Operator struct {
	ID   string       `json:"id"`
	Role OperatorRole `json:"role"`
}
