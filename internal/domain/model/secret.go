package model

import "time"

// Secret is a stored key-value credential such as the source-control token.
type Secret struct {
	ID        int64
	Key       string
	Value     string
	UpdatedAt time.Time
}
