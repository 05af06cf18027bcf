package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID         string    `bun:"id,pk" json:"id"`
	ExternalID string    `bun:"external_id,unique,notnull" json:"external_id"`
	Email      string    `bun:"email" json:"email"`
	Name       string    `bun:"name" json:"name"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// NormalizeExternalID reduces an identity-provider subject to its bare user id.
// Providers may prefix the id with the issuer ("https://issuer#user_123").
func NormalizeExternalID(raw string) string {
	id := strings.TrimSpace(raw)
	if i := strings.LastIndex(id, "#"); i >= 0 {
		id = id[i+1:]
	}
	return id
}
