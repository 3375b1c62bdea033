package policy

import (
	"strings"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

func TestValidate(t *testing.T) {
	limited := &Policy{MaxFileSize: int64Ptr(1000), AllowedExtensions: []string{"png"}}
	cases := []struct {
		name     string
		size     int64
		filename string
		policy   *Policy
		want     Reason
	}{
		{"nil policy", 1 << 40, "x.exe", nil, ""},
		{"empty policy", 1 << 40, "x.exe", &Policy{}, ""},
		{"extension checked after size passes", 500, "a.jpg", limited, ExtensionNotAllowed},
		{"size checked first", 5000, "a.jpg", limited, SizeExceeded},
		{"exact limit ok", 1000, "a.png", limited, ""},
		{"case insensitive", 10, "A.PNG", limited, ""},
		{"no extension", 10, "README", limited, ExtensionNotAllowed},
		{"last dot wins", 10, "archive.tar.png", limited, ""},
		{"dotted allow-list entry", 10, "a.gif", &Policy{AllowedExtensions: []string{".GIF"}}, ""},
		{"size only", 11, "a.bin", &Policy{MaxFileSize: int64Ptr(10)}, SizeExceeded},
	}
	for _, tc := range cases {
		rej := Validate(tc.size, tc.filename, tc.policy)
		switch {
		case tc.want == "" && rej != nil:
			t.Fatalf("%s: unexpected rejection %v", tc.name, rej)
		case tc.want != "" && rej == nil:
			t.Fatalf("%s: expect %s, got ok", tc.name, tc.want)
		case tc.want != "" && rej.Reason != tc.want:
			t.Fatalf("%s: expect %s, got %s", tc.name, tc.want, rej.Reason)
		}
	}
}

func TestRejectionCarriesDetails(t *testing.T) {
	p := &Policy{MaxFileSize: int64Ptr(1000), AllowedExtensions: []string{"png", "gif"}}

	rej := Validate(2000, "a.png", p)
	if rej == nil || rej.Limit != 1000 || rej.Actual != 2000 {
		t.Fatalf("size rejection should carry limit and actual: %+v", rej)
	}

	rej = Validate(10, "b.exe", p)
	if rej == nil || rej.Extension != "exe" || len(rej.Allowed) != 2 {
		t.Fatalf("extension rejection should carry ext and allow-list: %+v", rej)
	}
	if !strings.Contains(rej.Error(), "exe") || !strings.Contains(rej.Error(), "png, gif") {
		t.Fatalf("unexpected message %q", rej.Error())
	}
}

func TestCheckQuota(t *testing.T) {
	p := &Policy{MaxStorageSize: int64Ptr(100)}
	if rej := CheckQuota(50, 50, p); rej != nil {
		t.Fatalf("filling the quota exactly should pass: %v", rej)
	}
	rej := CheckQuota(60, 50, p)
	if rej == nil || rej.Reason != QuotaExceeded || rej.Actual != 110 {
		t.Fatalf("expect quota rejection, got %+v", rej)
	}
	if rej := CheckQuota(1<<40, 1, &Policy{}); rej != nil {
		t.Fatal("nil quota must never reject")
	}
	if rej := CheckQuota(1<<40, 1, nil); rej != nil {
		t.Fatal("nil policy must never reject")
	}
}

func TestReadLimit(t *testing.T) {
	if got := ReadLimit(nil, 0); got != -1 {
		t.Fatalf("expect unlimited, got %d", got)
	}
	if got := ReadLimit(nil, 100); got != 101 {
		t.Fatalf("expect hard cap + 1, got %d", got)
	}
	if got := ReadLimit(&Policy{MaxFileSize: int64Ptr(10)}, 100); got != 11 {
		t.Fatalf("expect policy limit + 1, got %d", got)
	}
	if got := ReadLimit(&Policy{MaxFileSize: int64Ptr(1000)}, 100); got != 101 {
		t.Fatalf("expect smaller hard cap, got %d", got)
	}
}
