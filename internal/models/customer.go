package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Customer is the caller's account record. Credentials are stored only as
// bcrypt hashes of their normalized form.
type Customer struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FullName string `gorm:"column:full_name;type:text" json:"full_name"`

	Phones pq.StringArray `gorm:"column:phones;type:text[]" json:"phones"`

	CardLast4Hash string `gorm:"column:card_last4_hash;type:text" json:"-"`
	AddressHash   string `gorm:"column:address_hash;type:text" json:"-"`

	// JSONB, free-form account facts the assistant may read back
	AccountSummary datatypes.JSON `gorm:"column:account_summary;type:jsonb" json:"account_summary"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
