package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	uploads *service.UploadService
	files   *service.FileService
}

func NewFileHandler(uploads *service.UploadService, files *service.FileService) *FileHandler {
	return &FileHandler{uploads: uploads, files: files}
}

// Upload stores one multipart file. Anonymous callers upload as guest when allowed.
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload: " + err.Error()})
		return
	}
	src, err := header.Open()
	if err != nil {
		utils.Fail(c, err)
		return
	}
	defer src.Close()

	var userID *uint64
	if id, ok := utils.CurrentUserID(c); ok {
		userID = &id
	}
	resp, err := h.uploads.Upload(c.Request.Context(), userID, service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        src,
	})
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, resp)
}

// BulkUpload imports every entry of an archive, keeping relative paths.
func (h *FileHandler) BulkUpload(c *gin.Context) {
	header, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Uploaded archive is empty."})
		return
	}
	src, err := header.Open()
	if err != nil {
		utils.Fail(c, err)
		return
	}
	defer src.Close()

	userID, _ := utils.CurrentUserID(c)
	report, err := h.uploads.BulkImport(c.Request.Context(), userID, service.BulkInput{
		Filename: header.Filename,
		Archive:  src,
		Size:     header.Size,
	})
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, dto.BulkUploadResponse{
		Detail:       report.Text,
		SuccessCount: report.SuccessCount,
		FailedCount:  report.FailedCount,
	})
}

// MyFiles pages through the caller's files.
func (h *FileHandler) MyFiles(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(service.DefaultPageSize)))
	resp, err := h.files.List(c.Request.Context(), identity(c), page, pageSize)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, resp)
}

func (h *FileHandler) deleteIDs(c *gin.Context, ids []uint64) {
	deleted, err := h.files.Delete(c.Request.Context(), identity(c), ids)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, dto.DeletedResponse{Deleted: deleted})
}

// BatchDelete removes the caller's files among the posted ids.
func (h *FileHandler) BatchDelete(c *gin.Context) {
	var req dto.FileIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	h.deleteIDs(c, req.IDs)
}

func (h *FileHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	h.deleteIDs(c, []uint64{id})
}

// Download streams one file with its original name.
func (h *FileHandler) Download(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	dl, err := h.files.Open(c.Request.Context(), identity(c), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	defer dl.File.Close()

	c.Header("Content-Type", dl.ContentType)
	c.Header("Content-Disposition", utils.ContentDisposition(dl.Name))
	http.ServeContent(c.Writer, c.Request, dl.Name, dl.Info.ModTime(), dl.File)
}

// BatchDownload streams the requested files as one zip archive.
func (h *FileHandler) BatchDownload(c *gin.Context) {
	var req dto.FileIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	rows, err := h.files.PrepareBatch(c.Request.Context(), identity(c), req.IDs)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", utils.ContentDisposition("batch_download.zip"))
	c.Status(http.StatusOK)
	if err := h.files.WriteZip(c.Writer, rows); err != nil {
		// 响应头已发送, 只能记录
		log.Printf("files: batch download: %v", err)
	}
}
