package report

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"quizdesk/internal/app/apiresp"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	AllResults(ctx context.Context) ([]ResultRow, error)
	ExportResultsExcel(ctx context.Context) ([]byte, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.AllResults(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: results})
}

func (h *Handler) ExportResults(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportResultsExcel(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}

	filename := fmt.Sprintf("quiz-results-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
