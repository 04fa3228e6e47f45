package model

import "time"

type Account struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Balance      int       `db:"balance" json:"points"`
	Active       bool      `db:"active" json:"active"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"date_joined"`
}

type AchievementImage struct {
	ID         int64     `db:"id" json:"id"`
	AccountID  int64     `db:"account_id" json:"account_id"`
	ImageURL   string    `db:"image_url" json:"url"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
