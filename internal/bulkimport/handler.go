package bulkimport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/transport"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

const (
	maxUploadBytes = 32 << 20
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// EntryLister is the listing slice the export endpoint needs.
type EntryLister interface {
	ListEntries(actor entry.Actor, query entry.ListQuery) (*entry.ListResult, error)
}

type Handler struct {
	*transport.BaseHandler
	Importer  *Importer
	Entries   EntryLister
	Mail      mailer.Mailer
	UploadDir string
}

func NewHandler(importer *Importer, entries EntryLister, mail mailer.Mailer, uploadDir string) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Importer:    importer,
		Entries:     entries,
		Mail:        mail,
		UploadDir:   uploadDir,
	}
}

// Upload receives a multipart spreadsheet, stages it on disk and runs
// the import pipeline. The response is the per-row summary; an email
// copy of the summary goes to the uploader out of band.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	actor := entry.Actor{
		UserID:       caller.ID,
		Name:         caller.Name,
		Role:         caller.Role,
		BusinessUnit: caller.BusinessUnit,
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.Logger.Error("Upload: bad multipart form", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".csv" {
		h.WriteError(w, http.StatusBadRequest, "only .xlsx and .csv files are supported")
		return
	}

	stagedPath, err := h.stageUpload(file, header.Filename)
	if err != nil {
		h.Logger.Error("Upload: could not stage file", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "could not store uploaded file")
		return
	}

	summary, err := h.Importer.Run(actor, stagedPath)
	if err != nil {
		h.Logger.Error("Upload: import failed", "error", err, "user_id", actor.UserID, "file", header.Filename)
		h.HandleServiceError(w, err)
		return
	}

	h.mailSummary(caller, header.Filename, summary)

	h.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) stageUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(originalName))
	path := filepath.Join(h.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *Handler) mailSummary(caller *auth.AuthUser, fileName string, summary *Summary) {
	if caller.Email == "" {
		return
	}
	rowErrors := make([]string, 0, len(summary.Errors))
	for _, rowErr := range summary.Errors {
		rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %s", rowErr.Row, rowErr.Error))
	}
	msg := mailer.ComposeImportSummary(caller.Email, caller.Name, fileName, summary.Success, rowErrors)
	go func() {
		if err := h.Mail.Send(msg); err != nil {
			h.Logger.Warn("import summary email failed", "error", err, "to", caller.Email)
		}
	}()
}

// DownloadTemplate streams the canonical upload template.
func (h *Handler) DownloadTemplate(w http.ResponseWriter, r *http.Request) {
	f, err := BuildTemplate()
	if err != nil {
		h.Logger.Error("DownloadTemplate: build failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "could not build template")
		return
	}
	streamWorkbook(w, f, "expense-import-template.xlsx", h.Logger)
}

// Export streams the caller's entry listing as a workbook. The same
// filters the listing endpoint takes apply here; pagination does not,
// an export is always the full result set.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	actor := entry.Actor{
		UserID:       caller.ID,
		Name:         caller.Name,
		Role:         caller.Role,
		BusinessUnit: caller.BusinessUnit,
	}

	q := r.URL.Query()
	query := entry.ListQuery{
		BusinessUnit:    q.Get("business_unit"),
		CostCenter:      q.Get("cost_center"),
		Status:          q.Get("status"),
		EntryStatus:     q.Get("entry_status"),
		Month:           q.Get("month"),
		CardNumber:      q.Get("card_number"),
		ServiceHandler:  q.Get("service_handler"),
		Search:          q.Get("search"),
		DuplicateFilter: q.Get("duplicate_status"),
	}

	result, err := h.Entries.ListEntries(actor, query)
	if err != nil {
		h.Logger.Error("Export: listing failed", "error", err, "user_id", actor.UserID)
		h.WriteError(w, http.StatusInternalServerError, "failed to export entries")
		return
	}

	f, err := BuildExport(result.Entries)
	if err != nil {
		h.Logger.Error("Export: build failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "could not build export")
		return
	}
	fileName := "expense-entries-" + strconv.FormatInt(time.Now().Unix(), 10) + ".xlsx"
	streamWorkbook(w, f, fileName, h.Logger)
}

func streamWorkbook(w http.ResponseWriter, f *excelize.File, fileName string, lg *slog.Logger) {
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		lg.Error("workbook stream failed", "error", err, "file", fileName)
	}
}
