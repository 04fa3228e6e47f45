package model

import "time"

type Session struct {
	ID        int64     `db:"id" json:"id"`
	Token     string    `db:"token" json:"token"`
	AccountID int64     `db:"account_id" json:"account_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
