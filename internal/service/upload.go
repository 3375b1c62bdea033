package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/archive"
	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/metrics"
	"github.com/cocdeshijie/MikaniroBytes/internal/policy"
	"github.com/cocdeshijie/MikaniroBytes/internal/preview"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/datatypes"
)

// 随机文件名冲突时的重试次数
const nameAttempts = 3

// UploadService stores single uploads and archive imports.
type UploadService struct {
	files     *repo.FileStore
	store     storage.Store
	settings  *SettingsService
	registry  *preview.Registry
	scheduler preview.Scheduler
	cfg       config.StorageConfig
	baseURL   string
	now       func() time.Time
}

// NewUploadService wires the upload pipeline. A nil scheduler disables previews.
func NewUploadService(
	files *repo.FileStore,
	store storage.Store,
	settings *SettingsService,
	registry *preview.Registry,
	scheduler preview.Scheduler,
	cfg config.StorageConfig,
	baseURL string,
) *UploadService {
	if scheduler == nil {
		scheduler = preview.NoopScheduler{}
	}
	return &UploadService{
		files:     files,
		store:     store,
		settings:  settings,
		registry:  registry,
		scheduler: scheduler,
		cfg:       cfg,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// UploadInput is one uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Link builds an absolute URL under the public base.
func Link(baseURL, prefix, rel string) string {
	return strings.TrimRight(baseURL, "/") + "/" + prefix + "/" + (&url.URL{Path: rel}).EscapedPath()
}

func (s *UploadService) uploader(ctx context.Context, userID *uint64) (*Identity, error) {
	if userID != nil {
		ident, err := s.settings.Identity(ctx, *userID)
		if err != nil {
			return nil, internal("load user", err)
		}
		if ident == nil {
			return nil, ErrUnauthorized
		}
		return ident, nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, internal("load settings", err)
	}
	if !settings.PublicUploadEnabled {
		return nil, ErrPublicUploadDisabled
	}
	guest, err := s.settings.Guest(ctx)
	if err != nil {
		return nil, internal("load guest", err)
	}
	if guest == nil {
		// 没有 guest 用户时文件不属于任何人
		return &Identity{}, nil
	}
	return guest, nil
}

// readLimited reads at most limit bytes; over reports whether the body was longer than allowed.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit < 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	return data, int64(len(data)) >= limit, err
}

// admit runs the group policy and the server cap on content that was read up to limit.
func (s *UploadService) admit(size int64, name string, p *policy.Policy, over bool) *policy.Rejection {
	if rej := policy.Validate(size, name, p); rej != nil {
		return rej
	}
	if over {
		return &policy.Rejection{Reason: policy.SizeExceeded, Limit: s.cfg.MaxUploadBytes, Actual: size}
	}
	return nil
}

func (s *UploadService) quota(ctx context.Context, ident *Identity, size int64) error {
	if !s.cfg.EnforceQuota || ident.UserID == 0 || ident.Policy == nil || ident.Policy.MaxStorageSize == nil {
		return nil
	}
	used, err := s.files.SumSizeByOwner(ctx, ident.UserID)
	if err != nil {
		return internal("sum storage", err)
	}
	if rej := policy.CheckQuota(used, size, ident.Policy); rej != nil {
		return rejected(rej)
	}
	return nil
}

func detectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// cleanFilename keeps the last path segment of a client file name, without control characters.
func cleanFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
}

func ownerOf(ident *Identity) *uint64 {
	if ident == nil || ident.UserID == 0 {
		return nil
	}
	id := ident.UserID
	return &id
}

func (s *UploadService) newRecord(rel string, data []byte, contentType, original string, ident *Identity) *model.File {
	return &model.File{
		Size:             int64(len(data)),
		FileType:         model.FileTypeBase,
		StorageType:      model.StorageTypeLocal,
		StorageData:      datatypes.JSONMap{"path": rel},
		StoragePath:      rel,
		ContentType:      &contentType,
		OriginalFilename: &original,
		UserID:           ownerOf(ident),
	}
}

// classify tags the stored file and schedules its preview when a generator exists.
func (s *UploadService) classify(ctx context.Context, f *model.File) {
	ft := preview.Classify(f.RelPath())
	if ft == model.FileTypeBase {
		return
	}
	if err := s.files.UpdateFileType(ctx, f.ID, ft); err != nil {
		log.Printf("upload: classify file %d: %v", f.ID, err)
		return
	}
	f.FileType = ft
	if s.registry.Supports(ft) {
		s.scheduler.Schedule(f.ID)
	}
}

// Upload stores one file for userID, or for the guest user when userID is nil.
func (s *UploadService) Upload(ctx context.Context, userID *uint64, in UploadInput) (*dto.UploadResponse, error) {
	resp, err := s.upload(ctx, userID, in)
	switch {
	case err == nil:
		metrics.UploadsTotal.WithLabelValues(metrics.ResultOK).Inc()
	case errors.As(err, new(*policy.Rejection)):
		metrics.UploadsTotal.WithLabelValues(metrics.ResultRejected).Inc()
	default:
		metrics.UploadsTotal.WithLabelValues(metrics.ResultFailed).Inc()
	}
	return resp, err
}

func (s *UploadService) upload(ctx context.Context, userID *uint64, in UploadInput) (*dto.UploadResponse, error) {
	ident, err := s.uploader(ctx, userID)
	if err != nil {
		return nil, err
	}

	original := cleanFilename(in.Filename)
	if in.Body == nil || original == "" || original == "." || original == "/" {
		return nil, badRequest("No file uploaded")
	}

	data, over, err := readLimited(in.Body, policy.ReadLimit(ident.Policy, s.cfg.MaxUploadBytes))
	if err != nil {
		return nil, badRequest(fmt.Sprintf("Read upload: %v", err))
	}
	if len(data) == 0 {
		return nil, badRequest("Uploaded file is empty")
	}
	size := int64(len(data))
	if rej := s.admit(size, original, ident.Policy, over); rej != nil {
		return nil, rejected(rej)
	}
	if err := s.quota(ctx, ident, size); err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, internal("load settings", err)
	}
	now := s.now().UTC()
	dir := storage.Sanitize(storage.RenderPathTemplate(s.settings.PathTemplate(settings), now))
	contentType := detectContentType(in.ContentType, data)

	var record *model.File
	for attempt := 0; attempt < nameAttempts && record == nil; attempt++ {
		name := storage.HashedName(original, size, now)
		rel := storage.JoinRel(dir, name)
		if path.Base(rel) != name {
			return nil, badRequest("Invalid file name.")
		}
		abs, err := s.store.WriteNew(rel, data)
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return nil, internal("write file", err)
		}

		f := s.newRecord(rel, data, contentType, original, ident)
		if err := s.files.Create(ctx, f); err != nil {
			if rmErr := s.store.Delete(abs); rmErr != nil {
				log.Printf("upload: remove %s after failed insert: %v", abs, rmErr)
			}
			if repo.IsDuplicateKey(err) {
				continue
			}
			return nil, internal("save file", err)
		}
		record = f
	}
	if record == nil {
		return nil, newError(http.StatusInternalServerError, "Could not allocate a unique file name")
	}
	metrics.UploadBytesTotal.Add(float64(size))

	s.classify(ctx, record)

	return &dto.UploadResponse{
		Detail:           "File uploaded successfully",
		FileID:           record.ID,
		DirectLink:       Link(s.baseURL, "uploads", record.RelPath()),
		DownloadLink:     fmt.Sprintf("%s/files/download/%d", s.baseURL, record.ID),
		OriginalFilename: original,
	}, nil
}

// BulkInput is an uploaded archive.
type BulkInput struct {
	Filename string
	Archive  archive.Source
	Size     int64
}

// EntryResult is the outcome of one archive entry.
type EntryResult struct {
	Name    string
	FileID  uint64
	Skipped bool
	Err     error
}

// BulkReport summarizes an archive import.
type BulkReport struct {
	SuccessCount int
	FailedCount  int
	Entries      []EntryResult
	Text         string
}

// BulkImport stores every acceptable entry of an archive for userID, keeping its relative path.
// Entry failures are reported, never fatal; only an unreadable archive fails the call.
func (s *UploadService) BulkImport(ctx context.Context, userID uint64, in BulkInput) (*BulkReport, error) {
	format, err := archive.DetectFormat(in.Filename)
	if err != nil {
		return nil, badRequest("Only .zip or .tar(.gz) are accepted.")
	}
	if in.Archive == nil || in.Size <= 0 {
		return nil, badRequest("Uploaded archive is empty.")
	}
	ident, err := s.settings.Identity(ctx, userID)
	if err != nil {
		return nil, internal("load user", err)
	}
	if ident == nil {
		return nil, ErrUnauthorized
	}

	var used int64
	if s.cfg.EnforceQuota && ident.Policy != nil && ident.Policy.MaxStorageSize != nil {
		if used, err = s.files.SumSizeByOwner(ctx, ident.UserID); err != nil {
			return nil, internal("sum storage", err)
		}
	}

	report := &BulkReport{}
	walkErr := archive.Walk(in.Archive, in.Size, format, func(e archive.Entry) error {
		res := s.importEntry(ctx, ident, e, &used)
		report.Entries = append(report.Entries, res)
		return nil
	})
	if walkErr != nil {
		msg := "Archive error: " + strings.TrimPrefix(walkErr.Error(), archive.ErrCorrupt.Error()+": ")
		if len(report.Entries) == 0 {
			return nil, badRequest(msg)
		}
		report.Entries = append(report.Entries, EntryResult{Name: in.Filename, Err: errors.New(msg)})
	}

	report.summarize()
	return report, nil
}

func (s *UploadService) importEntry(ctx context.Context, ident *Identity, e archive.Entry, used *int64) (res EntryResult) {
	res.Name = e.Name
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("unexpected error: %v", rec)
		}
		switch {
		case res.Skipped:
			metrics.BulkEntriesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		case res.Err == nil:
			metrics.BulkEntriesTotal.WithLabelValues(metrics.ResultOK).Inc()
		case IsConflict(res.Err):
			metrics.BulkEntriesTotal.WithLabelValues(metrics.ResultConflict).Inc()
		case errors.As(res.Err, new(*policy.Rejection)):
			metrics.BulkEntriesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		default:
			metrics.BulkEntriesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		}
	}()

	rel := storage.Sanitize(e.Name)
	if rel == "" {
		res.Err = badRequest("Invalid entry path.")
		return res
	}
	name := path.Base(rel)
	// 先按声明大小拒绝, 避免读取超限内容
	if rej := policy.Validate(e.Size, name, ident.Policy); rej != nil {
		res.Err = rej
		return res
	}

	rc, err := e.Open()
	if err != nil {
		res.Err = err
		return res
	}
	data, over, err := readLimited(rc, policy.ReadLimit(ident.Policy, s.cfg.MaxUploadBytes))
	rc.Close()
	if err != nil {
		res.Err = err
		return res
	}
	if len(data) == 0 {
		res.Skipped = true
		return res
	}
	size := int64(len(data))
	if rej := s.admit(size, name, ident.Policy, over); rej != nil {
		res.Err = rej
		return res
	}
	if s.cfg.EnforceQuota {
		if rej := policy.CheckQuota(*used, size, ident.Policy); rej != nil {
			res.Err = rej
			return res
		}
	}

	existing, err := s.files.FindByExactPath(ctx, rel)
	if err != nil {
		res.Err = err
		return res
	}
	if existing != nil {
		res.Err = &ConflictError{Path: rel}
		return res
	}
	onDisk, err := s.store.Exists(rel)
	if err != nil {
		res.Err = err
		return res
	}
	if onDisk {
		res.Err = &ConflictError{Path: rel}
		return res
	}
	abs, err := s.store.WriteNew(rel, data)
	if errors.Is(err, storage.ErrExists) {
		res.Err = &ConflictError{Path: rel}
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}

	f := s.newRecord(rel, data, detectContentType("", data), name, ident)
	if err := s.files.Create(ctx, f); err != nil {
		if rmErr := s.store.Delete(abs); rmErr != nil {
			log.Printf("bulk import: remove %s after failed insert: %v", abs, rmErr)
		}
		if repo.IsDuplicateKey(err) {
			res.Err = &ConflictError{Path: rel}
		} else {
			res.Err = err
		}
		return res
	}
	*used += size
	metrics.UploadBytesTotal.Add(float64(size))
	s.classify(ctx, f)
	res.FileID = f.ID
	return res
}

func (r *BulkReport) summarize() {
	var failures []string
	for _, e := range r.Entries {
		switch {
		case e.Skipped:
		case e.Err != nil:
			r.FailedCount++
			failures = append(failures, fmt.Sprintf("%s\t%s", e.Name, e.Err))
		default:
			r.SuccessCount++
		}
	}
	total := r.SuccessCount + r.FailedCount
	if total == 0 {
		r.Text = "Nothing imported."
		return
	}
	lines := []string{fmt.Sprintf("%d/%d success", r.SuccessCount, total)}
	if r.FailedCount > 0 {
		lines = append(lines, fmt.Sprintf("%d failed", r.FailedCount), "")
		lines = append(lines, failures...)
	}
	r.Text = strings.Join(lines, "\n")
}
