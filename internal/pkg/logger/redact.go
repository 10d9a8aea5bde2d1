package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks the middle of a phone number or WhatsApp JID, keeping the
// country/area prefix and the last four digits.
// "5511988887777" → "5511*****7777"
// "5511988887777@s.whatsapp.net" → "5511*****7777@s.whatsapp.net"
// Numbers of 8 digits or fewer are fully masked.
func RedactPhone(v string) string {
	number, suffix := v, ""
	if at := strings.Index(v, "@"); at >= 0 {
		number, suffix = v[:at], v[at:]
	}
	if len(number) <= 8 {
		return strings.Repeat("*", len(number)) + suffix
	}
	return number[:4] + strings.Repeat("*", len(number)-8) + number[len(number)-4:] + suffix
}
