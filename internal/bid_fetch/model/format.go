package model

import (
	"strconv"
	"strings"
)

// FormatDate trims the time part of "2025-06-02 09:27:20". Empty input renders as "-".
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	date, _, _ := strings.Cut(s, " ")
	return date
}

// FormatCurrency renders an integer won amount with thousands separators, e.g. "1,234,000원".
// Anything that does not parse as an integer renders as "0원".
func FormatCurrency(s string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "0원"
	}
	return groupThousands(n) + "원"
}

func groupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
