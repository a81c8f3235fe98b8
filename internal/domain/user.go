package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is an operator account. Holding an account grants nothing by itself;
// every request is re-scored against the live context.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidateUsername enforces the account naming rules.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 64 {
		return fmt.Errorf("username must be 3-64 characters")
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-') {
			return fmt.Errorf("username may only contain letters, digits, '.', '_' and '-'")
		}
	}
	return nil
}
