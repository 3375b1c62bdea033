package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultFailed   = "failed"
	ResultSkipped  = "skipped"
)

var (
	// UploadsTotal counts single uploads by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mb_uploads_total",
			Help: "Single file uploads by result.",
		},
		[]string{"result"},
	)

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_upload_bytes_total",
		Help: "Bytes written by accepted uploads and archive entries.",
	})

	// BulkEntriesTotal counts archive entries by outcome.
	BulkEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mb_bulk_entries_total",
			Help: "Archive import entries by result.",
		},
		[]string{"result"},
	)

	PreviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mb_previews_total",
			Help: "Preview generation attempts by result.",
		},
		[]string{"result"},
	)

	FilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_files_deleted_total",
		Help: "Files removed from disk and metadata.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
