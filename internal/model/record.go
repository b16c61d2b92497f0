package model

import "time"

// ChallengeRecord is the single shared row holding the current HTTP-01 key
// authorization served by the responder.
type ChallengeRecord struct {
	ID        int64     `json:"id" db:"id"`
	Response  string    `json:"response" db:"response"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SettingRecord is the single settings row; PrivateKey holds the PEM account
// key when it is stored in the database.
type SettingRecord struct {
	ID         int64     `json:"id" db:"id"`
	PrivateKey *string   `json:"-" db:"private_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
