package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/civilens/civilens/internal/flow"
	"github.com/civilens/civilens/internal/landing"
)

func handleIndex(renderer *landing.Renderer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientFrom(r)
		data := landing.NewData(client.Page(), client.Flow().View(), client.TakeFlash())

		var buf bytes.Buffer
		if err := renderer.Render(&buf, data); err != nil {
			logger.ErrorContext(r.Context(), "rendering page", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}

func handleToggleMenu() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientFrom(r).ToggleMenu()
		backToPage(w, r)
	}
}

func handleToggleReport(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := clientFrom(r).ToggleReport(r.Context()); err != nil {
			logger.ErrorContext(r.Context(), "opening report flow", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		backToPage(w, r)
	}
}

func handleFormTab(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dispatchForm(w, r, logger, flow.SelectTab{Tab: flow.Tab(r.PostFormValue("tab"))})
	}
}

func handleFormPhone(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dispatchForm(w, r, logger, flow.SubmitPhone{Phone: r.PostFormValue("phone")})
	}
}

func handleFormCode(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dispatchForm(w, r, logger, flow.SubmitCode{Code: r.PostFormValue("code")})
	}
}

func handleFormReport(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := readDraft(w, r)
		if err != nil {
			clientFrom(r).SetFlash(err.Error())
			backToPage(w, r)
			return
		}
		dispatchForm(w, r, logger, flow.SubmitReport{Draft: draft})
	}
}

func handleFormRewards(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dispatchForm(w, r, logger, flow.LookupRewards{Phone: r.PostFormValue("phone")})
	}
}

// dispatchForm runs ev and redirects back to the page. A user error becomes
// the alert shown on the next render.
func dispatchForm(w http.ResponseWriter, r *http.Request, logger *slog.Logger, ev flow.Event) {
	client := clientFrom(r)
	if _, err := client.Flow().Dispatch(r.Context(), ev); err != nil {
		var ue *flow.UserError
		if !errors.As(err, &ue) {
			logger.ErrorContext(r.Context(), "flow dispatch failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		client.SetFlash(ue.Msg)
	}
	backToPage(w, r)
}

func backToPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
