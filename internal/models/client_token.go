package models

import "time"

// ClientToken maps an opaque credential to a stable client identity.
type ClientToken struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
}
