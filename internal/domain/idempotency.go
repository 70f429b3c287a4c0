package domain

import "time"

// Idempotency records the deposit produced by a request carrying an
// Idempotency-Key, keyed by (scope, key). A replay of the same key within the
// TTL returns the original deposit instead of opening a second provider session.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Scope     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_scope_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_scope_key,priority:2"`
	DepositID string    `gorm:"type:varchar(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
