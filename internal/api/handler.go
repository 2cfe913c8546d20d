package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// HandlerFunc handles a request already decoded into R.
type HandlerFunc[R any] func(r *http.Request, req R) Response

// Bind decodes part of the request into v.
type Bind func(r *http.Request, v any) error

// ErrorHandler writes err to the client.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Wrap converts a typed handler into an http.HandlerFunc. Binders run in
// order; the first failure is answered by onErr, as is a render failure.
func Wrap[R any](h HandlerFunc[R], onErr ErrorHandler, binders ...Bind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		for _, bind := range binders {
			if err := bind(r, &req); err != nil {
				onErr(w, r, err)
				return
			}
		}

		resp := h(r, req)
		if resp == nil {
			onErr(w, r, errors.New("handler returned nil response"))
			return
		}
		if err := resp.Render(w, r); err != nil {
			onErr(w, r, err)
		}
	}
}

// NewErrorHandler classifies err, logs it at a level matching the status
// class and writes the JSON error envelope.
func NewErrorHandler(log *slog.Logger) ErrorHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request, err error) {
		info := classify(err)
		log.LogAttrs(r.Context(), info.level, "request error",
			logger.Error(err),
			slog.Int("status_code", info.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("api"),
		)

		resp := jsonResponse{status: info.status, body: Envelope{Error: info.detail}}
		_ = resp.Render(w, r)
	}
}
