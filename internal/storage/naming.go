package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// HashedNameLength is the hex length of generated single-upload names.
const HashedNameLength = 16

// Sanitize turns an untrusted relative path into one that stays inside the storage root.
// Empty, "." and ".." segments are dropped and backslashes become slashes.
func Sanitize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.ContainsRune(part, 0) {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}

// Ext returns the lower-cased extension of name including the dot, or "".
// Extensions holding anything but letters and digits count as none.
func Ext(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(base)
	if ext == base || ext == "." {
		return ""
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ""
		}
	}
	return strings.ToLower(ext)
}

// ExtNoDot returns the lower-cased extension without its leading dot.
func ExtNoDot(name string) string {
	return strings.TrimPrefix(Ext(name), ".")
}

// HashedName derives a randomized file name that keeps the original extension.
func HashedName(original string, size int64, now time.Time) string {
	seed := fmt.Sprintf("%s-%d-%d-%s", original, size, now.UnixNano(), uuid.NewString())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:HashedNameLength] + Ext(original)
}

// JoinRel joins a rendered directory and a file name into a relative storage path.
func JoinRel(dir, name string) string {
	if dir == "" {
		return Sanitize(name)
	}
	return Sanitize(dir + "/" + name)
}
