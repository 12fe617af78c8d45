package domain

import "github.com/google/uuid"

// IsID reports whether s is an entity id in the hyphenated 36-character form.
// uuid.Parse also accepts urn, braced and bare-hex forms that PostgreSQL rejects.
func IsID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
