package identity

import "time"

// User represents a registered account holder. The user id doubles as the
// custody account identifier.
type User struct {
	ID           string
	Phone        string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}
