package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/vadimbarashkov/linkhub/internal/models"
	"github.com/vadimbarashkov/linkhub/internal/registry"
	"github.com/vadimbarashkov/linkhub/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest is the payload for creating a shortened URL.
type shortenRequest struct {
	URL        string `json:"url" validate:"required,url"`
	CustomCode string `json:"custom_code,omitempty" validate:"omitempty,alphanum,min=3,max=20"`
}

// clickResponse is one click event in a link payload.
type clickResponse struct {
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// linkResponse is the payload for a link record.
type linkResponse struct {
	ID             string          `json:"id"`
	ShortCode      string          `json:"short_code"`
	URL            string          `json:"url"`
	IsCustomCode   bool            `json:"is_custom_code"`
	ClickCount     int64           `json:"click_count"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt *time.Time      `json:"last_accessed_at,omitempty"`
	ClickHistory   []clickResponse `json:"click_history,omitempty"`
}

func toLinkResponse(record *models.LinkRecord) linkResponse {
	resp := linkResponse{
		ID:             record.ID,
		ShortCode:      record.ShortCode,
		URL:            record.OriginalURL,
		IsCustomCode:   record.IsCustomCode,
		ClickCount:     record.ClickCount,
		CreatedAt:      record.CreatedAt,
		LastAccessedAt: record.LastAccessedAt,
	}

	for _, click := range record.ClickHistory {
		resp.ClickHistory = append(resp.ClickHistory, clickResponse{
			Timestamp: click.Timestamp,
			UserAgent: click.UserAgent,
			Referrer:  click.Referrer,
		})
	}

	return resp
}

func toLinkResponses(records []*models.LinkRecord) []linkResponse {
	resps := make([]linkResponse, 0, len(records))
	for _, record := range records {
		resps = append(resps, toLinkResponse(record))
	}
	return resps
}

// statsResponse is the payload for aggregate statistics.
type statsResponse struct {
	TotalURLs      int            `json:"total_urls"`
	TotalClicks    int64          `json:"total_clicks"`
	TopURLs        []linkResponse `json:"top_urls"`
	RecentActivity []linkResponse `json:"recent_activity"`
}

// logEntryResponse is the payload for one event log entry.
type logEntryResponse struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Action    string         `json:"action,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid URL and may carry a custom short code.
// Validation failures and taken codes map to 400 and 409 respectively.
func handleShortenURL(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		record, err := svc.Shorten(r.Context(), req.URL, req.CustomCode)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrInvalidURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Invalid URL", "The provided URL is not a valid absolute URL."))
			case errors.Is(err, registry.ErrInvalidShortCode):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Invalid Short Code", "Custom codes must be 3-20 alphanumeric characters."))
			case errors.Is(err, registry.ErrShortCodeTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ConflictResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(record)))
	}
}

// handleResolveShortCode handles GET requests to resolve a short code into
// its record, click history included. Resolving never counts as a click.
func handleResolveShortCode(svc LinkService) http.HandlerFunc {
	const successMsg = "The short code was successfully resolved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		record, err := svc.Lookup(r.Context(), shortCode)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(record)))
	}
}

// handleDeleteShortCode handles DELETE requests to remove a short code.
func handleDeleteShortCode(svc LinkService) http.HandlerFunc {
	const successMsg = "The URL was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		if !svc.Delete(r.Context(), shortCode) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleListURLs handles GET requests for the full listing, newest first.
func handleListURLs(svc LinkService) http.HandlerFunc {
	const successMsg = "The URLs were successfully listed."

	return func(w http.ResponseWriter, r *http.Request) {
		records := svc.ListAll(r.Context())

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponses(records)))
	}
}

// handleGetStats handles GET requests for aggregate statistics.
func handleGetStats(svc LinkService) http.HandlerFunc {
	const successMsg = "The statistics were successfully computed."

	return func(w http.ResponseWriter, r *http.Request) {
		stats := svc.ComputeStats(r.Context())

		data := statsResponse{
			TotalURLs:      stats.TotalURLs,
			TotalClicks:    stats.TotalClicks,
			TopURLs:        toLinkResponses(stats.TopURLs),
			RecentActivity: toLinkResponses(stats.RecentActivity),
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleGetLogs handles GET requests for the event log, newest first.
func handleGetLogs(svc LogService) http.HandlerFunc {
	const successMsg = "The logs were successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		entries := svc.GetAll()

		data := make([]logEntryResponse, 0, len(entries))
		for _, e := range entries {
			data = append(data, logEntryResponse{
				ID:        e.ID,
				Timestamp: e.Timestamp,
				Level:     string(e.Level),
				Message:   e.Message,
				Context:   e.Context,
				Action:    e.Action,
				UserID:    e.UserID,
			})
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleClearLogs handles DELETE requests to clear the event log.
func handleClearLogs(svc LogService) http.HandlerFunc {
	const successMsg = "The logs were successfully cleared."

	return func(w http.ResponseWriter, r *http.Request) {
		svc.Clear(r.Context())

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleRedirect handles the navigation route: it resolves the short code,
// records the click with the caller's user agent and referrer, and redirects
// to the original URL.
func handleRedirect(svc LinkService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		record, err := svc.Lookup(r.Context(), shortCode)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		svc.RecordClick(r.Context(), shortCode, r.UserAgent(), r.Referer())

		http.Redirect(w, r, record.OriginalURL, http.StatusFound)
	}
}
