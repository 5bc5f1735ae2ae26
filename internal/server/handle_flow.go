package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/flow"
)

const maxEvidenceBytes = 10 << 20

type TabRequest struct {
	Tab string `json:"tab"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

// ReportForm documents the multipart body of POST /api/flow/report.
type ReportForm struct {
	ViolationType string `formData:"violationType" enum:"No Helmet,No Parking"`
	Location      string `formData:"location"`
	Description   string `formData:"description"`
	Image         []byte `formData:"image" format:"binary"`
}

type FlowErrorResponse struct {
	Error string     `json:"error"`
	Code  string     `json:"code,omitempty"`
	View  *flow.View `json:"view,omitempty"`
}

func handleFlowState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, clientFrom(r).Flow().View())
	}
}

func handleFlowTab(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TabRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		dispatchJSON(w, r, logger, flow.SelectTab{Tab: flow.Tab(req.Tab)})
	}
}

func handleFlowPhone(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PhoneRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		dispatchJSON(w, r, logger, flow.SubmitPhone{Phone: req.Phone})
	}
}

func handleFlowCode(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CodeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		dispatchJSON(w, r, logger, flow.SubmitCode{Code: req.Code})
	}
}

func handleFlowReport(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := readDraft(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		dispatchJSON(w, r, logger, flow.SubmitReport{Draft: draft})
	}
}

func handleFlowRewards(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PhoneRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		dispatchJSON(w, r, logger, flow.LookupRewards{Phone: req.Phone})
	}
}

func dispatchJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, ev flow.Event) {
	v, err := clientFrom(r).Flow().Dispatch(r.Context(), ev)
	if err != nil {
		writeFlowError(w, r, logger, v, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// readDraft parses the multipart report form. A missing image is not an
// error; an unknown violation type reads as none selected.
func readDraft(w http.ResponseWriter, r *http.Request) (civilens.ReportDraft, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes+1<<20)
	if err := r.ParseMultipartForm(maxEvidenceBytes); err != nil {
		return civilens.ReportDraft{}, errors.New("invalid report form")
	}

	vt, _ := civilens.ParseViolationType(r.FormValue("violationType"))
	draft := civilens.ReportDraft{
		ViolationType: vt,
		Location:      strings.TrimSpace(r.FormValue("location")),
		Description:   strings.TrimSpace(r.FormValue("description")),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return draft, nil
	case err != nil:
		return civilens.ReportDraft{}, errors.New("invalid image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxEvidenceBytes+1))
	if err != nil {
		return civilens.ReportDraft{}, errors.New("reading image upload")
	}
	if len(data) > maxEvidenceBytes {
		return civilens.ReportDraft{}, errors.New("image too large")
	}
	if len(data) == 0 {
		return draft, nil
	}

	draft.Image = &civilens.Evidence{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return draft, nil
}
