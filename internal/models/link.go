package models

import (
	"time"
)

type Link struct {
	ID           int64      `json:"id"`
	ShortCode    string     `json:"short_code"`
	OriginalURL  string     `json:"original_url"`
	OwnerID      string     `json:"owner_id"`
	PasswordHash *string    `json:"-"` // Только bcrypt-хэш, никогда не отдаётся наружу
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ClickCount   int64      `json:"click_count"`
	LastClicked  *time.Time `json:"last_clicked,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Protected сообщает, закрыта ли ссылка паролем
func (l *Link) Protected() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// ExpiredAt сообщает, истекла ли ссылка к моменту now
func (l *Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

type CreateLinkInput struct {
	OriginalURL string     `json:"original_url"`
	OwnerID     string     `json:"-"`
	CustomCode  *string    `json:"custom_code,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Password    *string    `json:"password,omitempty"`
}
