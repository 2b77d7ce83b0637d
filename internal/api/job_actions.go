package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swrite/swrite-agent/internal/cloud"
	"github.com/swrite/swrite-agent/internal/logging"
)

type pageAction int

const (
	pageApprove pageAction = iota
	pageRetry
)

// actionTarget resolves the session token and job id shared by every job
// action. It writes the error response itself and returns ok=false on failure.
func actionTarget(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (token, jobID string, ok bool) {
	if cfg.Actions == nil {
		WriteError(w, http.StatusServiceUnavailable, "job actions disabled", "UNAVAILABLE")
		return "", "", false
	}
	sess := cfg.Sessions.Current()
	if sess == nil {
		WriteError(w, http.StatusUnauthorized, "Error: sign in required", "AUTH_REQUIRED")
		return "", "", false
	}
	jobID = chi.URLParam(r, "id")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
		return "", "", false
	}
	return sess.AccessToken, jobID, true
}

func planJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, jobID, ok := actionTarget(cfg, w, r)
		if !ok {
			return
		}
		resp, err := cfg.Actions.Plan(r.Context(), token, jobID)
		if err != nil {
			writeActionError(cfg, w, r, jobID, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// replanJobHandler fills fields missing from the body with the default layout.
func replanJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, jobID, ok := actionTarget(cfg, w, r)
		if !ok {
			return
		}

		layout := cloud.DefaultLayout()
		if err := json.NewDecoder(r.Body).Decode(&layout); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := layout.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}

		resp, err := cfg.Actions.Replan(r.Context(), token, jobID, layout)
		if err != nil {
			writeActionError(cfg, w, r, jobID, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func renderJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, jobID, ok := actionTarget(cfg, w, r)
		if !ok {
			return
		}
		resp, err := cfg.Actions.Render(r.Context(), token, jobID)
		if err != nil {
			writeActionError(cfg, w, r, jobID, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func pageActionHandler(cfg ServerConfig, action pageAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, jobID, ok := actionTarget(cfg, w, r)
		if !ok {
			return
		}
		page, err := strconv.Atoi(chi.URLParam(r, "page"))
		if err != nil || page < 1 {
			WriteError(w, http.StatusBadRequest, "page must be a positive number", "BAD_REQUEST")
			return
		}

		call := cfg.Actions.ApprovePage
		if action == pageRetry {
			call = cfg.Actions.RetryPage
		}
		resp, err := call(r.Context(), token, jobID, page)
		if err != nil {
			writeActionError(cfg, w, r, jobID, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// writeActionError passes client errors from the Job API through with their
// status and detail. Everything else is a gateway failure.
func writeActionError(cfg ServerConfig, w http.ResponseWriter, r *http.Request, jobID string, err error) {
	logging.WithJobID(cfg.Logger, jobID).Warn("job action failed", "path", r.URL.Path, "error", err)

	var apiErr *cloud.APIError
	var transportErr *cloud.TransportError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		WriteError(w, apiErr.StatusCode, "Error: "+apiErr.Reason(), "SERVER_REJECTED")
	case errors.As(err, &apiErr):
		WriteError(w, http.StatusBadGateway, "Error: "+apiErr.Reason(), "UPSTREAM_ERROR")
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &transportErr):
		WriteError(w, http.StatusGatewayTimeout, "Error: could not reach the job service", "TRANSPORT_FAILURE")
	default:
		WriteError(w, http.StatusBadGateway, "Error: unexpected response from the job service", "MALFORMED_RESPONSE")
	}
}
