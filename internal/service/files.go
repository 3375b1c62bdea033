package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"

	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/metrics"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// FileService serves, lists and removes stored files.
type FileService struct {
	files    *repo.FileStore
	uploads  storage.Store
	previews storage.Store
	baseURL  string
}

// NewFileService creates a file service.
func NewFileService(files *repo.FileStore, uploads, previews storage.Store, baseURL string) *FileService {
	return &FileService{
		files:    files,
		uploads:  uploads,
		previews: previews,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Item converts a file row into its API listing form.
func (s *FileService) Item(f *model.File) dto.FileItem {
	item := dto.FileItem{
		FileID:           f.ID,
		OriginalFilename: f.DisplayName(),
		DirectLink:       Link(s.baseURL, "uploads", f.RelPath()),
		Size:             f.Size,
		CreatedAt:        f.CreatedAt,
	}
	if f.ContentType != nil {
		item.ContentType = *f.ContentType
	}
	if f.HasPreview && f.DefaultPreviewPath != nil && *f.DefaultPreviewPath != "" {
		u := Link(s.baseURL, "previews", *f.DefaultPreviewPath)
		item.HasPreview = true
		item.PreviewURL = &u
	}
	return item
}

// Items converts a slice of file rows.
func (s *FileService) Items(files []model.File) []dto.FileItem {
	items := make([]dto.FileItem, 0, len(files))
	for i := range files {
		items = append(items, s.Item(&files[i]))
	}
	return items
}

// List pages through the caller's files, newest first.
func (s *FileService) List(ctx context.Context, ident *Identity, page, pageSize int) (*dto.FileListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	rows, total, err := s.files.ListByOwner(ctx, ident.UserID, page, pageSize)
	if err != nil {
		return nil, internal("list files", err)
	}
	return &dto.FileListResponse{
		Items:    s.Items(rows),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// visible loads the requested rows the caller may act on. Admins see every file.
func (s *FileService) visible(ctx context.Context, ident *Identity, ids []uint64) ([]model.File, error) {
	if len(ids) == 0 {
		return nil, badRequest("Empty ids list")
	}
	var owner *uint64
	if !ident.IsSuperAdmin() {
		owner = &ident.UserID
	}
	rows, err := s.files.FindByIDs(ctx, ids, owner)
	if err != nil {
		return nil, internal("load files", err)
	}
	return rows, nil
}

// Delete removes the caller's files among ids and returns the IDs actually deleted.
func (s *FileService) Delete(ctx context.Context, ident *Identity, ids []uint64) ([]uint64, error) {
	rows, err := s.visible(ctx, ident, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("No matching files found")
	}
	deleted := make([]uint64, 0, len(rows))
	for i := range rows {
		if err := s.Remove(ctx, &rows[i]); err != nil {
			return deleted, internal(fmt.Sprintf("delete file %d", rows[i].ID), err)
		}
		deleted = append(deleted, rows[i].ID)
	}
	return deleted, nil
}

// Remove deletes the previews and bytes of f from disk, then its metadata.
func (s *FileService) Remove(ctx context.Context, f *model.File) error {
	previews, err := s.files.Previews(ctx, f.ID)
	if err != nil {
		return err
	}
	for _, p := range previews {
		abs, err := s.previews.Resolve(p.StoragePath)
		if err != nil {
			continue
		}
		if err := s.previews.Delete(abs); err != nil {
			log.Printf("files: remove preview %s: %v", abs, err)
		}
	}

	if f.StorageType == model.StorageTypeLocal {
		abs, err := s.uploads.Resolve(f.RelPath())
		if err != nil && !errors.Is(err, storage.ErrEmptyPath) {
			return err
		}
		if err == nil {
			if err := s.uploads.Delete(abs); err != nil {
				return err
			}
		}
	}

	if err := s.files.Delete(ctx, f.ID); err != nil {
		return err
	}
	metrics.FilesDeletedTotal.Inc()
	return nil
}

// Download is an opened stored file.
type Download struct {
	File        *os.File
	Info        os.FileInfo
	Name        string
	ContentType string
}

// Open returns the content of a file the caller owns (or any file for admins).
func (s *FileService) Open(ctx context.Context, ident *Identity, id uint64) (*Download, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, internal("load file", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}
	if !ident.IsSuperAdmin() && (f.UserID == nil || *f.UserID != ident.UserID) {
		return nil, ErrForbidden
	}
	file, info, err := s.uploads.Open(f.RelPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrEmptyPath) {
			return nil, notFound("File missing on disk.")
		}
		return nil, internal("open file", err)
	}
	contentType := "application/octet-stream"
	if f.ContentType != nil && *f.ContentType != "" {
		contentType = *f.ContentType
	}
	return &Download{File: file, Info: info, Name: f.DisplayName(), ContentType: contentType}, nil
}

// PrepareBatch checks a batch download request before anything is written.
// Non-admins get 403 when any requested file is not theirs.
func (s *FileService) PrepareBatch(ctx context.Context, ident *Identity, ids []uint64) ([]model.File, error) {
	rows, err := s.visible(ctx, ident, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("No valid files found")
	}
	if !ident.IsSuperAdmin() && len(rows) != len(uniqueIDs(ids)) {
		return nil, forbidden("Some files are not yours")
	}
	return rows, nil
}

func uniqueIDs(ids []uint64) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// WriteZip streams rows into a zip archive. Files missing on disk are skipped.
func (s *FileService) WriteZip(w io.Writer, rows []model.File) error {
	zw := zip.NewWriter(w)
	used := make(map[string]struct{}, len(rows))
	for i := range rows {
		f := &rows[i]
		src, _, err := s.uploads.Open(f.RelPath())
		if err != nil {
			log.Printf("files: batch skip %d: %v", f.ID, err)
			continue
		}
		name := uniqueEntryName(strings.ReplaceAll(f.DisplayName(), "/", "_"), used)
		dst, err := zw.Create(name)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

// uniqueEntryName returns name, or "name (n).ext" when name was already used.
func uniqueEntryName(name string, used map[string]struct{}) string {
	if name == "" {
		name = "file"
	}
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
}
