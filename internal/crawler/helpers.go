package crawler

import (
	"net/url"
	"time"
)

// TimeLayout is the capture-time format used by the bundled spiders.
const TimeLayout = "2006-01-02 15:04:05"

// Now returns the current local time in TimeLayout.
func Now() string {
	return time.Now().Format(TimeLayout)
}

// FormatTimestamp renders a Unix timestamp in TimeLayout, local time. Values with more
// than ten digits are treated as milliseconds.
func FormatTimestamp(ts int64) string {
	if ts > 9999999999 || ts < -9999999999 {
		ts /= 1000
	}
	return time.Unix(ts, 0).Format(TimeLayout)
}

// FormData url-encodes fields into a POST payload, sorted by key.
func FormData(fields map[string]string) string {
	values := make(url.Values, len(fields))
	for k, v := range fields {
		values.Set(k, v)
	}
	return values.Encode()
}
