package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "download"
	}
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	return clean
}

// ContentDisposition builds an attachment header carrying both an ASCII and a UTF-8 filename.
func ContentDisposition(name string) string {
	safe := SanitizeHeaderFilename(name)
	ascii := make([]rune, 0, len(safe))
	for _, r := range safe {
		if r < 0x20 || r > 0x7e {
			r = '_'
		}
		ascii = append(ascii, r)
	}
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", string(ascii), url.PathEscape(safe))
}
