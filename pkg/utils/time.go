package utils

import (
	"fmt"
	"time"
)

// Формат даты экспирации опциона в API шлюза
const ExpiryLayout = "20060102"

// ParseExpiry разбирает дату экспирации вида YYYYMMDD
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.Parse(ExpiryLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q: %w", s, err)
	}
	return t, nil
}

// FormatExpiry форматирует дату экспирации в YYYYMMDD
func FormatExpiry(t time.Time) string {
	return t.Format(ExpiryLayout)
}

// DaysToExpiry возвращает число календарных дней до экспирации.
// Отрицательное значение означает, что экспирация прошла.
func DaysToExpiry(expiry time.Time, now time.Time) int {
	return int(expiry.Sub(now.Truncate(24*time.Hour)).Hours() / 24)
}

// IsExpired сообщает, прошла ли экспирация на момент now
func IsExpired(expiry time.Time, now time.Time) bool {
	return now.After(expiry.Add(24 * time.Hour))
}
