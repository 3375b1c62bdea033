package storage

import (
	"fmt"
	"strings"
	"time"
)

// RenderPathTemplate expands {Y}{m}{d}{H}{M}{S} in template using now.
// Any other text, braces included, is kept as written. Leading and trailing separators are trimmed.
func RenderPathTemplate(template string, now time.Time) string {
	r := strings.NewReplacer(
		"{Y}", fmt.Sprintf("%04d", now.Year()),
		"{m}", fmt.Sprintf("%02d", int(now.Month())),
		"{d}", fmt.Sprintf("%02d", now.Day()),
		"{H}", fmt.Sprintf("%02d", now.Hour()),
		"{M}", fmt.Sprintf("%02d", now.Minute()),
		"{S}", fmt.Sprintf("%02d", now.Second()),
	)
	return strings.Trim(r.Replace(template), `/\`)
}
