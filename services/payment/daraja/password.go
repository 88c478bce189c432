package daraja

import (
	"encoding/base64"
	"time"
)

// TimestampLayout is Daraja's 14-digit second-precision wall-clock format.
const TimestampLayout = "20060102150405"

// Timestamp formats t for the STK push payload. The same string must be fed
// to Password; the gateway recomputes the digest from these exact bytes.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Password builds the STK push password: base64 of shortcode||passkey||timestamp.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
