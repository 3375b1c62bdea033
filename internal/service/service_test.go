package service

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/cache"
	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/preview"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"gorm.io/gorm"
)

const testBaseURL = "http://files.test"

type recordScheduler struct {
	mu  sync.Mutex
	ids []uint64
}

func (r *recordScheduler) Schedule(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type testEnv struct {
	db        *gorm.DB
	files     *repo.FileStore
	uploads   *storage.LocalStore
	previews  *storage.LocalStore
	settings  *SettingsService
	upload    *UploadService
	fileSvc   *FileService
	auth      *AuthService
	admin     *AdminService
	scheduled *recordScheduler
	adminID   uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repo.OpenSQLite(fmt.Sprintf("file:service_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := repo.Seed(db, "admin", "admin"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	uploads, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	previews, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "previews"))
	if err != nil {
		t.Fatal(err)
	}

	c := cache.NewMemoryCache(64, time.Minute)
	files := repo.NewFileStore(db)
	settings := NewSettingsService(db, c, time.Minute, model.DefaultPathTemplate)
	scheduled := &recordScheduler{}
	cfg := config.StorageConfig{
		UploadDir:           uploads.Root(),
		PreviewDir:          previews.Root(),
		DefaultPathTemplate: model.DefaultPathTemplate,
		MaxUploadBytes:      1 << 20,
		EnforceQuota:        true,
		PreviewSize:         256,
	}
	registry := preview.DefaultRegistry(previews, 256)
	fileSvc := NewFileService(files, uploads, previews, testBaseURL)
	env := &testEnv{
		db:        db,
		files:     files,
		uploads:   uploads,
		previews:  previews,
		settings:  settings,
		upload:    NewUploadService(files, uploads, settings, registry, scheduled, cfg, testBaseURL),
		fileSvc:   fileSvc,
		auth:      NewAuthService(db, utils.NewTokenManager("test-secret", time.Hour), settings, c, time.Minute),
		admin:     NewAdminService(db, files, fileSvc, settings),
		scheduled: scheduled,
	}
	var adminUser model.User
	if err := db.Where("username = ?", "admin").First(&adminUser).Error; err != nil {
		t.Fatal(err)
	}
	env.adminID = adminUser.ID
	return env
}

func (e *testEnv) register(t *testing.T, name string) uint64 {
	t.Helper()
	user, err := e.auth.Register(context.Background(), dto.RegisterRequest{Username: name, Password: "pw-" + name})
	if err != nil {
		t.Fatalf("register %s failed: %v", name, err)
	}
	return user.ID
}

func (e *testEnv) identity(t *testing.T, id uint64) *Identity {
	t.Helper()
	ident, err := e.settings.Identity(context.Background(), id)
	if err != nil || ident == nil {
		t.Fatalf("identity %d: %+v %v", id, ident, err)
	}
	return ident
}

func statusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func zipArchive(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(e[1]))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tarGzArchive(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: e[0], Mode: 0o644, Size: int64(len(e[1])), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(e[1]))
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func (e *testEnv) bulk(t *testing.T, userID uint64, name string, data []byte) *BulkReport {
	t.Helper()
	report, err := e.upload.BulkImport(context.Background(), userID, BulkInput{
		Filename: name,
		Archive:  bytes.NewReader(data),
		Size:     int64(len(data)),
	})
	if err != nil {
		t.Fatalf("bulk import failed: %v", err)
	}
	return report
}

func TestSingleUpload(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2025, 4, 7, 3, 5, 9, 0, time.UTC)
	e.upload.now = func() time.Time { return fixed }

	resp, err := e.upload.Upload(ctx, &e.adminID, UploadInput{
		Filename: "Holiday Photo.PNG",
		Body:     strings.NewReader("not really a png"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if resp.OriginalFilename != "Holiday Photo.PNG" || resp.Detail != "File uploaded successfully" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.DownloadLink != fmt.Sprintf("%s/files/download/%d", testBaseURL, resp.FileID) {
		t.Fatalf("unexpected download link %s", resp.DownloadLink)
	}

	f, _ := e.files.Get(ctx, resp.FileID)
	rel := f.RelPath()
	if !strings.HasPrefix(rel, "2025/04/") || !strings.HasSuffix(rel, ".png") {
		t.Fatalf("unexpected storage path %s", rel)
	}
	if len(strings.TrimSuffix(filepath.Base(rel), ".png")) != storage.HashedNameLength {
		t.Fatalf("name is not a fixed-length hash: %s", rel)
	}
	if resp.DirectLink != testBaseURL+"/uploads/"+rel {
		t.Fatalf("unexpected direct link %s", resp.DirectLink)
	}
	if f.Size != 16 || f.FileType != model.FileTypeImage || f.UserID == nil || *f.UserID != e.adminID {
		t.Fatalf("unexpected record %+v", f)
	}
	if f.ContentType == nil || *f.ContentType == "" {
		t.Fatal("content type should be sniffed")
	}
	data, err := os.ReadFile(filepath.Join(e.uploads.Root(), filepath.FromSlash(rel)))
	if err != nil || string(data) != "not really a png" {
		t.Fatalf("stored bytes mismatch: %q %v", data, err)
	}
	if len(e.scheduled.ids) != 1 || e.scheduled.ids[0] != resp.FileID {
		t.Fatalf("preview not scheduled: %v", e.scheduled.ids)
	}
}

func TestUploadRejectsEmptyAndNonImage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.upload.Upload(ctx, &e.adminID, UploadInput{Filename: "a.png", Body: strings.NewReader("")})
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expect 400 for empty upload, got %v", err)
	}

	resp, err := e.upload.Upload(ctx, &e.adminID, UploadInput{Filename: "doc.pdf", Body: strings.NewReader("%PDF-1.4")})
	if err != nil {
		t.Fatal(err)
	}
	f, _ := e.files.Get(ctx, resp.FileID)
	if f.FileType != model.FileTypeBase || len(e.scheduled.ids) != 0 {
		t.Fatalf("pdf should stay BASE without preview: %+v %v", f, e.scheduled.ids)
	}
}

func TestPublicUpload(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.upload.Upload(ctx, nil, UploadInput{Filename: "a.png", Body: strings.NewReader("x")})
	if !errors.Is(err, ErrPublicUploadDisabled) || statusOf(err) != http.StatusForbidden {
		t.Fatalf("expect 403 when public upload is disabled, got %v", err)
	}

	enabled := true
	if _, err := e.admin.UpdateSettings(ctx, dto.SettingsUpdateRequest{PublicUploadEnabled: &enabled}); err != nil {
		t.Fatal(err)
	}
	resp, err := e.upload.Upload(ctx, nil, UploadInput{Filename: "a.png", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("guest upload failed: %v", err)
	}
	f, _ := e.files.Get(ctx, resp.FileID)
	guest, _ := e.settings.Guest(ctx)
	if f.UserID == nil || *f.UserID != guest.UserID {
		t.Fatalf("file should belong to guest, got %+v", f.UserID)
	}

	_, err = e.upload.Upload(ctx, nil, UploadInput{Filename: "a.zip", Body: strings.NewReader("x")})
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("guest policy should refuse zip, got %v", err)
	}
}

func TestUploadPolicyAndQuota(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "alice")

	_, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: "tool.exe", Body: strings.NewReader("MZ")})
	if statusOf(err) != http.StatusBadRequest || !strings.Contains(err.Error(), "'exe' not allowed") {
		t.Fatalf("expect extension rejection, got %v", err)
	}

	var users model.Group
	e.db.Where("name = ?", model.GroupUsers).First(&users)
	if _, err := e.admin.UpdateGroup(ctx, users.ID, dto.GroupUpdateRequest{
		MaxFileSize:    dto.Some(int64(10)),
		MaxStorageSize: dto.Some(int64(15)),
	}); err != nil {
		t.Fatal(err)
	}

	_, err = e.upload.Upload(ctx, &uid, UploadInput{Filename: "big.png", Body: strings.NewReader("0123456789ABC")})
	if statusOf(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("expect 413 for oversized file, got %v", err)
	}
	if _, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: "one.png", Body: strings.NewReader("0123456789")}); err != nil {
		t.Fatalf("first file should fit: %v", err)
	}
	_, err = e.upload.Upload(ctx, &uid, UploadInput{Filename: "two.png", Body: strings.NewReader("0123456789")})
	if statusOf(err) != http.StatusRequestEntityTooLarge || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expect quota rejection, got %v", err)
	}

	// null 表示不限制
	if _, err := e.admin.UpdateGroup(ctx, users.ID, dto.GroupUpdateRequest{
		MaxFileSize:    dto.Optional[int64]{Set: true},
		MaxStorageSize: dto.Optional[int64]{Set: true},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: "two.png", Body: strings.NewReader("0123456789ABC")}); err != nil {
		t.Fatalf("limits should be lifted: %v", err)
	}
}

func TestUploadControlCharacterFilename(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2025, 4, 7, 3, 5, 9, 0, time.UTC)
	e.upload.now = func() time.Time { return fixed }
	uid := e.register(t, "dave")

	var users model.Group
	e.db.Where("name = ?", model.GroupUsers).First(&users)
	if _, err := e.admin.UpdateGroup(ctx, users.ID, dto.GroupUpdateRequest{
		AllowedExtensions: dto.Optional[[]string]{Set: true},
	}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"x.\x00", "x.p\x00ng", "a\x01b.p\x07ng"} {
		resp, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: name, Body: strings.NewReader("data")})
		if err != nil {
			t.Fatalf("upload %q failed: %v", name, err)
		}
		f, _ := e.files.Get(ctx, resp.FileID)
		rel := f.RelPath()
		if filepath.Dir(filepath.FromSlash(rel)) != filepath.Join("2025", "04") {
			t.Fatalf("upload %q landed outside the month directory: %s", name, rel)
		}
		if strings.ContainsFunc(rel+resp.OriginalFilename, func(r rune) bool { return r < 0x20 }) {
			t.Fatalf("control characters kept for %q: %s %q", name, rel, resp.OriginalFilename)
		}
	}

	info, err := os.Stat(filepath.Join(e.uploads.Root(), "2025", "04"))
	if err != nil || !info.IsDir() {
		t.Fatalf("month directory must stay a directory: %v", err)
	}
	if _, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: "ok.png", Body: strings.NewReader("png")}); err != nil {
		t.Fatalf("later upload failed: %v", err)
	}
}

func TestUploadTemplateKeepsLiteralText(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2025, 4, 7, 3, 5, 9, 0, time.UTC)
	e.upload.now = func() time.Time { return fixed }

	tmpl := "files/{user}/{Y}"
	if _, err := e.admin.UpdateSettings(ctx, dto.SettingsUpdateRequest{UploadPathTemplate: &tmpl}); err != nil {
		t.Fatal(err)
	}
	resp, err := e.upload.Upload(ctx, &e.adminID, UploadInput{Filename: "a.png", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	f, _ := e.files.Get(ctx, resp.FileID)
	if !strings.HasPrefix(f.RelPath(), "files/{user}/2025/") {
		t.Fatalf("unexpected storage path %s", f.RelPath())
	}
}

func TestBulkImportPolicyUsesBaseName(t *testing.T) {
	e := newTestEnv(t)
	uid := e.register(t, "erin")
	report := e.bulk(t, uid, "docs.zip", zipArchive(t, [2]string{"v1.2/README", "readme"}))
	if report.FailedCount != 1 || !strings.Contains(report.Text, "Extension '(none)' not allowed") {
		t.Fatalf("unexpected report:\n%s", report.Text)
	}
}

func TestBulkImportScenario(t *testing.T) {
	e := newTestEnv(t)
	uid := e.register(t, "bob")

	archive := zipArchive(t,
		[2]string{"a.png", strings.Repeat("a", 200)},
		[2]string{"b.exe", strings.Repeat("b", 300)},
		[2]string{"a.png", strings.Repeat("c", 200)},
	)
	report := e.bulk(t, uid, "batch.zip", archive)

	if report.SuccessCount != 1 || report.FailedCount != 2 {
		t.Fatalf("expect 1 success 2 failed, got %+v", report)
	}
	for _, want := range []string{"1/3 success", "2 failed", "b.exe\t", "a.png\tFile already exists"} {
		if !strings.Contains(report.Text, want) {
			t.Fatalf("report missing %q:\n%s", want, report.Text)
		}
	}
	data, err := os.ReadFile(filepath.Join(e.uploads.Root(), "a.png"))
	if err != nil || string(data) != strings.Repeat("a", 200) {
		t.Fatalf("first a.png must be kept intact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.uploads.Root(), "b.exe")); !os.IsNotExist(err) {
		t.Fatal("rejected entry must not touch disk")
	}
}

func TestBulkImportTwiceNeverOverwrites(t *testing.T) {
	e := newTestEnv(t)
	archive := tarGzArchive(t,
		[2]string{"pics/one.png", "first-one"},
		[2]string{"pics/two.gif", "first-two"},
		[2]string{"empty.png", ""},
	)
	first := e.bulk(t, e.adminID, "set.tgz", archive)
	if first.SuccessCount != 2 || first.FailedCount != 0 {
		t.Fatalf("first pass: %+v", first)
	}

	second := e.bulk(t, e.adminID, "set.tar.gz", tarGzArchive(t,
		[2]string{"pics/one.png", "second-one"},
		[2]string{"pics/two.gif", "second-two"},
	))
	if second.SuccessCount != 0 || second.FailedCount != 2 {
		t.Fatalf("second pass should fail every entry: %+v", second)
	}
	for name, want := range map[string]string{"pics/one.png": "first-one", "pics/two.gif": "first-two"} {
		data, _ := os.ReadFile(filepath.Join(e.uploads.Root(), filepath.FromSlash(name)))
		if string(data) != want {
			t.Fatalf("%s overwritten: %q", name, data)
		}
	}
}

func TestBulkImportKeepsUntrackedFiles(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.uploads.Write("old/kept.png", []byte("original")); err != nil {
		t.Fatal(err)
	}
	report := e.bulk(t, e.adminID, "old.zip", zipArchive(t, [2]string{"old/kept.png", "replacement"}))
	if report.SuccessCount != 0 || report.FailedCount != 1 || !strings.Contains(report.Text, "File already exists at 'old/kept.png'") {
		t.Fatalf("unexpected report:\n%s", report.Text)
	}
	data, _ := os.ReadFile(filepath.Join(e.uploads.Root(), "old", "kept.png"))
	if string(data) != "original" {
		t.Fatalf("untracked file overwritten: %q", data)
	}
	if f, _ := e.files.FindByExactPath(context.Background(), "old/kept.png"); f != nil {
		t.Fatal("no record should be created for a conflicting entry")
	}
}

func TestBulkImportSanitizesPaths(t *testing.T) {
	e := newTestEnv(t)
	report := e.bulk(t, e.adminID, "evil.zip", zipArchive(t, [2]string{"../../escape.png", "x"}))
	if report.SuccessCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := os.Stat(filepath.Join(e.uploads.Root(), "escape.png")); err != nil {
		t.Fatalf("entry should land inside the root: %v", err)
	}
	f, _ := e.files.FindByExactPath(context.Background(), "escape.png")
	if f == nil {
		t.Fatal("record should use the sanitized path")
	}
}

func TestBulkImportArchiveErrors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.upload.BulkImport(ctx, e.adminID, BulkInput{Filename: "x.rar", Archive: bytes.NewReader([]byte("x")), Size: 1})
	if statusOf(err) != http.StatusBadRequest || !strings.Contains(err.Error(), "Only .zip") {
		t.Fatalf("expect format rejection, got %v", err)
	}
	_, err = e.upload.BulkImport(ctx, e.adminID, BulkInput{Filename: "x.zip", Archive: bytes.NewReader([]byte("junk")), Size: 4})
	if statusOf(err) != http.StatusBadRequest || !strings.HasPrefix(err.Error(), "Archive error") {
		t.Fatalf("expect archive error, got %v", err)
	}

	report := e.bulk(t, e.adminID, "dirs.zip", zipArchive(t, [2]string{"only/dir/", ""}))
	if report.Text != "Nothing imported." {
		t.Fatalf("unexpected text %q", report.Text)
	}
}

func TestCorruptImageStillUploads(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	runner := preview.NewRunner(e.db, e.uploads, preview.DefaultRegistry(e.previews, 256))
	sched := preview.NewLocalScheduler(runner, 1, 4)
	e.upload.scheduler = sched

	resp, err := e.upload.Upload(ctx, &e.adminID, UploadInput{Filename: "broken.jpg", Body: strings.NewReader("garbage")})
	if err != nil {
		t.Fatalf("upload must succeed: %v", err)
	}
	sched.Close()

	f, _ := e.files.Get(ctx, resp.FileID)
	if f.HasPreview {
		t.Fatal("corrupt image must not get a preview")
	}
}

func TestDeletePrunesDirectories(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "carol")
	e.bulk(t, uid, "two.zip", zipArchive(t,
		[2]string{"2025/04/x.png", "x"},
		[2]string{"2025/04/y.png", "y"},
	))
	x, _ := e.files.FindByExactPath(ctx, "2025/04/x.png")
	y, _ := e.files.FindByExactPath(ctx, "2025/04/y.png")

	other := e.register(t, "mallory")
	if _, err := e.fileSvc.Delete(ctx, e.identity(t, other), []uint64{x.ID}); statusOf(err) != http.StatusNotFound {
		t.Fatalf("foreign delete should be 404, got %v", err)
	}

	deleted, err := e.fileSvc.Delete(ctx, e.identity(t, uid), []uint64{x.ID})
	if err != nil || len(deleted) != 1 {
		t.Fatalf("delete failed: %v %v", deleted, err)
	}
	if _, err := os.Stat(filepath.Join(e.uploads.Root(), "2025", "04")); err != nil {
		t.Fatal("directory with remaining files must stay")
	}

	if _, err := e.fileSvc.Delete(ctx, e.identity(t, e.adminID), []uint64{y.ID}); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.uploads.Root(), "2025")); !os.IsNotExist(err) {
		t.Fatal("empty ancestors should be pruned")
	}
	if _, err := os.Stat(e.uploads.Root()); err != nil {
		t.Fatal("storage root must never be removed")
	}
	if gone, _ := e.files.Get(ctx, y.ID); gone != nil {
		t.Fatal("row should be deleted")
	}
}

func TestDownloadPermissions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "dave")
	resp, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: "note.gif", Body: strings.NewReader("GIF89a")})
	if err != nil {
		t.Fatal(err)
	}

	dl, err := e.fileSvc.Open(ctx, e.identity(t, uid), resp.FileID)
	if err != nil {
		t.Fatalf("owner download failed: %v", err)
	}
	dl.File.Close()
	if dl.Name != "note.gif" || dl.Info.Size() != 6 {
		t.Fatalf("unexpected download %+v", dl)
	}

	other := e.register(t, "erin")
	if _, err := e.fileSvc.Open(ctx, e.identity(t, other), resp.FileID); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expect 403, got %v", err)
	}
	if _, err := e.fileSvc.Open(ctx, e.identity(t, uid), resp.FileID+100); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expect 404, got %v", err)
	}

	f, _ := e.files.Get(ctx, resp.FileID)
	os.Remove(filepath.Join(e.uploads.Root(), filepath.FromSlash(f.RelPath())))
	if _, err := e.fileSvc.Open(ctx, e.identity(t, e.adminID), resp.FileID); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expect 404 for missing bytes, got %v", err)
	}
}

func TestBatchZip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	var ids []uint64
	for i := 0; i < 2; i++ {
		resp, err := e.upload.Upload(ctx, &e.adminID, UploadInput{Filename: "same.png", Body: strings.NewReader(fmt.Sprintf("v%d", i))})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.FileID)
	}

	other := e.register(t, "frank")
	if _, err := e.fileSvc.PrepareBatch(ctx, e.identity(t, other), ids); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expect 404 for foreign files, got %v", err)
	}

	rows, err := e.fileSvc.PrepareBatch(ctx, e.identity(t, e.adminID), ids)
	if err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	if err := e.fileSvc.WriteZip(buf, rows); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "same.png" || zr.File[1].Name != "same (1).png" {
		t.Fatalf("unexpected entries %v", zr.File)
	}
}

func TestListMyFiles(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "gina")
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := e.upload.Upload(ctx, &uid, UploadInput{Filename: name, Body: strings.NewReader(name)}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := e.fileSvc.List(ctx, e.identity(t, uid), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 3 || len(list.Items) != 2 || list.Items[0].OriginalFilename != "c.png" {
		t.Fatalf("unexpected page %+v", list)
	}
	if list.Items[0].HasPreview || list.Items[0].PreviewURL != nil {
		t.Fatal("no preview generated yet")
	}
	list, _ = e.fileSvc.List(ctx, e.identity(t, uid), 1, 1000)
	if list.PageSize != MaxPageSize {
		t.Fatalf("page size should be clamped, got %d", list.PageSize)
	}
}
