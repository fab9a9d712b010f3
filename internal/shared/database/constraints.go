package database

import (
	"fmt"

	"gorm.io/gorm"
)

// AuthIndexes are the unique indexes on users that registration and Google
// linking depend on. idx_users_username comes from the model tags, the others
// from MigrateConstraints.
var AuthIndexes = []string{
	"idx_users_username",
	"idx_users_email_lower",
	"idx_users_google_id",
}

// Registration checks for existing emails and usernames first, but two
// concurrent sign-ups can both pass that check; these indexes make the second
// insert fail instead.
var constraintStatements = []struct {
	name string
	sql  string
}{
	// Emails are compared case-insensitively
	{"idx_users_email_lower", `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))`},
	// At most one account per Google identity
	{"idx_users_google_id", `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_id ON users (google_id) WHERE google_id IS NOT NULL`},
}

// MigrateConstraints adds the identity indexes the model tags cannot express.
func MigrateConstraints(db *gorm.DB) error {
	for _, stmt := range constraintStatements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return nil
}
