package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/upload"
)

// Form field names of the upload endpoint.
const (
	FieldFile = "pdfFile"
	FieldCSRF = "csrf_token"
)

// multipartOverhead is the room left for form fields and boundaries on top
// of the file size limit.
const multipartOverhead = 1 << 20

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

type breakerHealth struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Rejected            int64  `json:"rejected"`
}

type healthResponse struct {
	Status     string         `json:"status"`
	Classifier *breakerHealth `json:"classifier,omitempty"`
}

// handleHealth checks the database. The classifier breaker is reported but
// never fails the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if b := s.cfg.Breaker; b != nil {
		failures, _, rejected := b.Counters()
		resp.Classifier = &breakerHealth{
			State:               b.State().String(),
			ConsecutiveFailures: failures,
			Rejected:            rejected,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.bills.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = upload.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	// Processing continues if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	scope := ingest.NewScope(middleware.GetReqID(r.Context()))

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		msg := "Erro: Requisição inválida."
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Arquivo excede o tamanho máximo permitido."
		}
		scope.Log.Warn("ingest failed",
			zap.String("action", "upload_rejected"),
			zap.String("detail", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, messageResponse{Success: false, Message: msg})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	csrf := upload.CSRF{Submitted: r.FormValue(FieldCSRF)}
	if c, err := r.Cookie(s.cfg.CSRFCookie); err == nil {
		csrf.Expected = c.Value
	}

	var f *upload.File
	if file, header, err := r.FormFile(FieldFile); err == nil {
		defer file.Close()
		f = fileFromPart(file, header)
	}

	out, err := s.pipeline.Run(ctx, scope, f, csrf)
	writeJSON(w, ingest.HTTPStatus(err), messageResponse{Success: out.Success, Message: out.Message})
}

func fileFromPart(file multipart.File, header *multipart.FileHeader) *upload.File {
	return &upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	m, ok := model.ModuleByName(chi.URLParam(r, "module"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "módulo desconhecido"})
		return
	}
	status, err := analytics.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "filtro de status inválido"})
		return
	}

	bills, err := s.bills.ListBills(r.Context(), m)
	if err != nil {
		s.log.Error("list bills failed", zap.String("module", m.Name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "erro ao consultar as contas"})
		return
	}
	report := analytics.BuildReport(m.Name, bills, status)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportName(m.Name, status)))
		if err := analytics.WriteCSV(w, report.Bills); err != nil {
			s.log.Error("csv export failed", zap.String("module", m.Name), zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func exportName(module, status string) string {
	name := "contas_" + module
	if status != analytics.StatusAll {
		name += "_" + status
	}
	return name + ".csv"
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("modulo")
	if name == "" {
		name = model.ModuleEnergy
	}
	m, ok := model.ModuleByName(name)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "módulo desconhecido"})
		return
	}

	bills, err := s.bills.ListBills(r.Context(), m)
	if err != nil {
		s.log.Error("list bills failed", zap.String("module", m.Name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "erro ao consultar as contas"})
		return
	}
	filter := analytics.Filter{Installation: q.Get("instalacao"), Month: q.Get("mes_ano")}
	writeJSON(w, http.StatusOK, analytics.BuildRecommendations(m.Name, bills, filter, s.cfg.Thresholds))
}
