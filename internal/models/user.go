package models

import "github.com/google/uuid"

// User is a guest identity scoped to a single room. Users are created on
// join and removed on leave or room deletion; a disconnect only flips
// Connected so the seat survives for rejoin.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
}
