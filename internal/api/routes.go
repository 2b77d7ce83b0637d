package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swrite/swrite-agent/internal/dashboard"
	"github.com/swrite/swrite-agent/internal/intake"
	"github.com/swrite/swrite-agent/internal/session"
	"github.com/swrite/swrite-agent/internal/submit"
)

// maxUploadBytes leaves room for form fields around the largest accepted file.
const maxUploadBytes = intake.MaxFileBytes + 1<<20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Jobs, cfg.Logger))

		if cfg.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", cfg.Metrics)
		}

		r.Get("/session", getSessionHandler(cfg))
		r.Post("/session/login", loginHandler(cfg))
		r.Post("/session/logout", logoutHandler(cfg))

		r.Get("/state", stateHandler(cfg))
		r.Post("/selection", selectHandler(cfg))
		r.Delete("/selection", clearSelectionHandler(cfg))

		r.Post("/jobs", createJobHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/jobs/{id}/plan", planJobHandler(cfg))
		r.Post("/jobs/{id}/replan", replanJobHandler(cfg))
		r.Post("/jobs/{id}/render", renderJobHandler(cfg))
		r.Post("/jobs/{id}/pages/{page}/approve", pageActionHandler(cfg, pageApprove))
		r.Post("/jobs/{id}/pages/{page}/retry", pageActionHandler(cfg, pageRetry))

		r.Get("/tracking", trackingHandler(cfg))
		r.Post("/tracking/pause", pauseTrackingHandler(cfg))
		r.Post("/tracking/resume", resumeTrackingHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, SessionToResponse(cfg.Sessions.Current()))
	}
}

func loginHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ExpiresIn < 0 {
			WriteError(w, http.StatusBadRequest, "expires_in must not be negative", "BAD_REQUEST")
			return
		}

		sess, err := cfg.Sessions.SignIn(r.Context(), req.Provider, session.Credentials{
			AccessToken: req.AccessToken,
			Email:       req.Email,
			ExpiresIn:   time.Duration(req.ExpiresIn) * time.Second,
		})
		if errors.Is(err, session.ErrInvalidCredentials) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to save session", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, SessionToResponse(sess))
	}
}

func logoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.SignOut(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to clear session", "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func stateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Dashboard.View())
	}
}

func selectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Dashboard.Snapshot().Authenticated {
			writeSubmitError(w, submit.ErrAuthRequired)
			return
		}

		artifact, ok := readArtifact(w, r)
		if !ok {
			return
		}
		if artifact == nil {
			WriteError(w, http.StatusBadRequest, "file is required", "BAD_REQUEST")
			return
		}

		if err := cfg.Dashboard.SelectArtifact(artifact); err != nil {
			writeSubmitError(w, selectionError(err))
			return
		}
		WriteJSON(w, http.StatusOK, SelectionResponse{Selected: artifact})
	}
}

func clearSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Dashboard.ClearArtifact(); err != nil {
			writeSubmitError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// createJobHandler submits an uploaded file, else the current selection,
// else the content field (or the configured sample text).
func createJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Dashboard.Snapshot().Authenticated {
			writeSubmitError(w, submit.ErrAuthRequired)
			return
		}

		artifact, ok := readArtifact(w, r)
		if !ok {
			return
		}
		content := r.FormValue("content")

		if artifact != nil {
			if err := cfg.Dashboard.SelectArtifact(artifact); err != nil {
				writeSubmitError(w, selectionError(err))
				return
			}
		}

		res, err := cfg.Dashboard.CreateJob(r.Context(), content)
		if err != nil {
			writeSubmitError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, CreateJobResponse{
			JobID:        res.JobID,
			LocalID:      res.LocalID,
			Segregation:  res.Segregation,
			PagesCreated: res.PagesCreated,
			Message:      submit.CreatedBanner(res.JobID),
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Jobs.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// getJobHandler looks the job up by local id, then by server job id.
func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.GetJob(r.Context(), id)
		if err == nil && job == nil {
			job, err = cfg.Jobs.GetJobByRemoteID(r.Context(), id)
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func trackingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Tracker == nil {
			WriteError(w, http.StatusServiceUnavailable, "status tracking disabled", "UNAVAILABLE")
			return
		}
		WriteJSON(w, http.StatusOK, TrackingResponse{Paused: cfg.Tracker.IsPaused()})
	}
}

func pauseTrackingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Tracker == nil {
			WriteError(w, http.StatusServiceUnavailable, "status tracking disabled", "UNAVAILABLE")
			return
		}
		cfg.Tracker.Pause()
		WriteJSON(w, http.StatusOK, TrackingResponse{Paused: true})
	}
}

func resumeTrackingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Tracker == nil {
			WriteError(w, http.StatusServiceUnavailable, "status tracking disabled", "UNAVAILABLE")
			return
		}
		cfg.Tracker.Resume()
		WriteJSON(w, http.StatusOK, TrackingResponse{Paused: false})
	}
}

// readArtifact parses an optional multipart body and runs its "file" parts
// through intake. It writes the error response itself and returns ok=false
// on failure. Requests without a multipart body yield no artifact.
func readArtifact(w http.ResponseWriter, r *http.Request) (*intake.Artifact, bool) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "upload too large", "FILE_TOO_LARGE")
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "invalid multipart body", "BAD_REQUEST")
		return nil, false
	}

	headers := r.MultipartForm.File["file"]
	candidates := make([]intake.Candidate, 0, len(headers))
	for _, fh := range headers {
		c, err := readCandidate(fh)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read upload", "BAD_REQUEST")
			return nil, false
		}
		candidates = append(candidates, c)
	}

	artifact, err := intake.Accept(candidates)
	switch {
	case err == nil:
		return artifact, true
	case errors.Is(err, intake.ErrMultipleFiles):
		WriteError(w, http.StatusBadRequest, err.Error(), "MULTIPLE_FILES")
	case errors.Is(err, intake.ErrUnsupportedType):
		WriteError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_MEDIA_TYPE")
	case errors.Is(err, intake.ErrFileTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), "FILE_TOO_LARGE")
	case errors.Is(err, intake.ErrEmptyFile):
		WriteError(w, http.StatusBadRequest, err.Error(), "EMPTY_FILE")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
	return nil, false
}

func readCandidate(fh *multipart.FileHeader) (intake.Candidate, error) {
	f, err := fh.Open()
	if err != nil {
		return intake.Candidate{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, intake.MaxFileBytes+1))
	if err != nil {
		return intake.Candidate{}, err
	}
	return intake.Candidate{Filename: fh.Filename, Data: data}, nil
}

// selectionError turns a rejected selection into the matching submit failure.
func selectionError(err error) error {
	if errors.Is(err, dashboard.ErrSignedOut) {
		return submit.ErrAuthRequired
	}
	return err
}

// writeSubmitError maps submission failures to HTTP statuses. The error text
// is the banner the user would see.
func writeSubmitError(w http.ResponseWriter, err error) {
	var f *submit.Failure
	if !errors.As(err, &f) {
		WriteError(w, http.StatusInternalServerError, submit.FailedBanner("Error: "+err.Error()), "INTERNAL_ERROR")
		return
	}

	status, code := http.StatusBadGateway, "UPSTREAM_ERROR"
	switch f.Kind {
	case submit.KindAuthRequired:
		status, code = http.StatusUnauthorized, "AUTH_REQUIRED"
	case submit.KindInFlight:
		status, code = http.StatusConflict, "IN_FLIGHT"
	case submit.KindValidation:
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case submit.KindServerRejected:
		code = "SERVER_REJECTED"
	case submit.KindMalformedResponse:
		code = "MALFORMED_RESPONSE"
	case submit.KindTransport:
		status, code = http.StatusGatewayTimeout, "TRANSPORT_FAILURE"
	}
	WriteError(w, status, submit.FailedBanner(f.Message), code)
}
