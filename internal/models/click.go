package models

import (
	"time"
)

// Click одно неизменяемое событие успешного перехода по ссылке
type Click struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"link_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Referrer  string    `json:"referrer"`
	ClickedAt time.Time `json:"clicked_at"`
}

type ClickEvent struct {
	LinkID    int64
	IPAddress string
	UserAgent string
	Referrer  string
}

// DailyClickStats количество кликов за один календарный день
type DailyClickStats struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}
