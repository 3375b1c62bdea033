package policy

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Policy is the upload constraint set of a group. Nil limits mean unlimited.
type Policy struct {
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxFileSize       *int64   `json:"max_file_size"`
	MaxStorageSize    *int64   `json:"max_storage_size"`
}

type Reason string

const (
	SizeExceeded        Reason = "size_exceeded"
	ExtensionNotAllowed Reason = "extension_not_allowed"
	QuotaExceeded       Reason = "quota_exceeded"
)

// Rejection explains why a file was refused.
type Rejection struct {
	Reason    Reason
	Limit     int64
	Actual    int64
	Extension string
	Allowed   []string
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case SizeExceeded:
		return fmt.Sprintf("File too large (%s > %s).",
			humanize.Bytes(uint64(r.Actual)), humanize.Bytes(uint64(r.Limit)))
	case ExtensionNotAllowed:
		ext := r.Extension
		if ext == "" {
			ext = "(none)"
		}
		return fmt.Sprintf("Extension '%s' not allowed. Allowed: %s.", ext, strings.Join(r.Allowed, ", "))
	case QuotaExceeded:
		return fmt.Sprintf("Storage quota exceeded (%s used of %s).",
			humanize.Bytes(uint64(r.Actual)), humanize.Bytes(uint64(r.Limit)))
	default:
		return "upload rejected"
	}
}

// Extension returns the lower-cased text after the last dot of filename, or "".
func Extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Validate checks the size limit, then the extension allow-list.
// A nil policy accepts everything.
func Validate(size int64, filename string, p *Policy) *Rejection {
	if p == nil {
		return nil
	}
	if p.MaxFileSize != nil && size > *p.MaxFileSize {
		return &Rejection{Reason: SizeExceeded, Limit: *p.MaxFileSize, Actual: size}
	}
	if len(p.AllowedExtensions) > 0 {
		ext := Extension(filename)
		for _, allowed := range p.AllowedExtensions {
			if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
				return nil
			}
		}
		return &Rejection{
			Reason:    ExtensionNotAllowed,
			Extension: ext,
			Allowed:   append([]string(nil), p.AllowedExtensions...),
		}
	}
	return nil
}

// CheckQuota rejects an upload that would push used past the cumulative storage limit.
func CheckQuota(used, incoming int64, p *Policy) *Rejection {
	if p == nil || p.MaxStorageSize == nil {
		return nil
	}
	if used+incoming > *p.MaxStorageSize {
		return &Rejection{Reason: QuotaExceeded, Limit: *p.MaxStorageSize, Actual: used + incoming}
	}
	return nil
}

// ReadLimit is the number of bytes worth reading before a file is certainly too large.
// hardCap <= 0 means no server-wide cap.
func ReadLimit(p *Policy, hardCap int64) int64 {
	limit := int64(-1)
	if hardCap > 0 {
		limit = hardCap
	}
	if p != nil && p.MaxFileSize != nil && *p.MaxFileSize >= 0 && (limit < 0 || *p.MaxFileSize < limit) {
		limit = *p.MaxFileSize
	}
	if limit < 0 {
		return -1
	}
	return limit + 1
}
