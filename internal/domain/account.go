package domain

import "time"

// Account is a registered player. Identifier is the normalized e-mail used to
// sign in; PasswordHash holds the salt:digest credential, never the plaintext.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Identifier   string    `gorm:"uniqueIndex;size:255;not null" json:"login"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Status       string    `gorm:"size:32;not null;default:active" json:"status"`
	LastLoginAt  time.Time `json:"last_login_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
