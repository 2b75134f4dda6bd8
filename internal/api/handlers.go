// Package api exposes HTTP handlers for the quicklog service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/quicklog/internal/auth"
	"example.com/quicklog/internal/domain"
	"example.com/quicklog/internal/observability"
	"example.com/quicklog/internal/parse"
	"example.com/quicklog/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/entries", h.entries)
	mux.HandleFunc("/v1/entries/", h.entryByID)
	mux.HandleFunc("/v1/entries/parse", h.parsePreview)
	mux.HandleFunc("/v1/entries/stats", h.entryStats)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logEntries(w, r)
	case http.MethodGet:
		h.listEntries(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) entryByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/entries/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing entry id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/confirm"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.confirmEntry(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getEntry(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// parsePreview runs the parser without persisting anything so clients can
// show the interpretation before the user commits to it.
func (h *Handler) parsePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesRead) && !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:read required")
		return
	}

	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activities, err := parse.Parse(parse.Input{
		Text:         req.Text,
		TypeOverride: parse.ActivityType(req.TypeOverride),
		OccurredAt:   req.OccurredAt,
	})
	if err != nil {
		if errors.Is(err, parse.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ParseResponse{Segments: make([]ParsedSegment, 0, len(activities))}
	for i := range activities {
		segment := toParsedSegment(&activities[i])
		observability.RecordParseDecision(string(activities[i].Type), segment.Decision, activities[i].Confidence)
		resp.Segments = append(resp.Segments, segment)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) logEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:write required")
		return
	}

	var req LogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	outcomes, replay, err := h.service.LogText(r.Context(), domain.LogInput{
		TenantID:       claims.TenantID,
		UserID:         req.UserID,
		Text:           req.Text,
		TypeOverride:   parse.ActivityType(req.TypeOverride),
		OccurredAt:     req.OccurredAt,
		Source:         req.Source,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if errors.Is(err, parse.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := LogResponse{
		Results: make([]LogResult, 0, len(outcomes)),
		Replay:  replay,
	}
	for i := range outcomes {
		outcome := outcomes[i]
		result := LogResult{Decision: string(outcome.Decision), Hint: outcome.Hint}
		if outcome.Activity != nil {
			segment := toParsedSegment(outcome.Activity)
			result.Parsed = &segment
			observability.RecordParseDecision(string(outcome.Activity.Type), string(outcome.Decision), outcome.Activity.Confidence)
		}
		if outcome.Entry != nil {
			view := toEntryView(*outcome.Entry)
			result.Entry = &view
		}
		resp.Results = append(resp.Results, result)
	}

	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) confirmEntry(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:write required")
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.Accepted == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "accepted is required")
		return
	}

	entry, err := h.service.ResolvePending(r.Context(), claims.TenantID, id, *req.Accepted)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "not_found", "entry not found")
		case errors.Is(err, domain.ErrEntryNotPending):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesRead) && !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:read required")
		return
	}

	entry, err := h.service.GetEntry(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesRead) && !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	aggregates, next, err := h.service.ListEntriesByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]EntryView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toEntryView(agg))
	}

	resp := ListEntriesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) entryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEntriesRead) && !claims.HasScope(auth.ScopeEntriesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope entries:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	timelineLimit := 10
	if raw := r.URL.Query().Get("timeline_limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 50 {
				parsed = 50
			}
			timelineLimit = parsed
		}
	}

	windowHours := 24
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			windowHours = parsed
		}
	}

	window := time.Duration(windowHours) * time.Hour
	summary, timeline, err := h.service.GetEntryStats(r.Context(), claims.TenantID, userID, window, timelineLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := EntryStatsResponse{
		Summary: EntryStatsSummary{
			Total:             summary.Total,
			Logged:            summary.Logged,
			Pending:           summary.Pending,
			Rejected:          summary.Rejected,
			CountByType:       summary.CountByType,
			AverageConfidence: summary.AverageConfidence,
			LastEntryAt:       summary.LastEntryAt,
		},
		WindowSeconds: int64(window / time.Second),
		TimelineLimit: timelineLimit,
		Timeline:      make([]EntryView, 0, len(timeline)),
	}
	for _, agg := range timeline {
		resp.Timeline = append(resp.Timeline, toEntryView(agg))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ParseRequest is the payload for POST /v1/entries/parse.
type ParseRequest struct {
	Text         string    `json:"text"`
	TypeOverride string    `json:"type_override,omitempty"`
	OccurredAt   time.Time `json:"occurred_at,omitempty"`
}

// ParsedSegment is the interpretation of one comma-separated segment.
type ParsedSegment struct {
	Type       string       `json:"type"`
	Fields     parse.Fields `json:"fields"`
	Confidence int          `json:"confidence"`
	Decision   string       `json:"decision"`
	RawText    string       `json:"raw_text"`
	Timestamp  time.Time    `json:"timestamp"`
	Warnings   []string     `json:"warnings,omitempty"`
	Hint       string       `json:"hint,omitempty"`
}

// ParseResponse packages preview results.
type ParseResponse struct {
	Segments []ParsedSegment `json:"segments"`
}

// LogRequest is the payload for POST /v1/entries.
type LogRequest struct {
	UserID       string    `json:"user_id"`
	Text         string    `json:"text"`
	TypeOverride string    `json:"type_override,omitempty"`
	OccurredAt   time.Time `json:"occurred_at,omitempty"`
	Source       string    `json:"source"`
}

// Validate ensures request correctness.
func (r LogRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

// LogResult is the per-segment outcome of a logging request.
type LogResult struct {
	Decision string         `json:"decision"`
	Parsed   *ParsedSegment `json:"parsed,omitempty"`
	Entry    *EntryView     `json:"entry,omitempty"`
	Hint     string         `json:"hint,omitempty"`
}

// LogResponse describes the response body for POST /v1/entries.
type LogResponse struct {
	Results []LogResult `json:"results"`
	Replay  bool        `json:"idempotent_replay"`
}

// ConfirmRequest carries the user's answer for a pending entry.
type ConfirmRequest struct {
	Accepted *bool `json:"accepted"`
}

// EntryView exposes full details about a stored entry.
type EntryView struct {
	EntryID    string          `json:"entry_id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	EntryType  string          `json:"entry_type"`
	Fields     json.RawMessage `json:"fields"`
	Confidence int             `json:"confidence"`
	RawText    string          `json:"raw_text"`
	OccurredAt time.Time       `json:"occurred_at"`
	Source     string          `json:"source"`
	Version    string          `json:"version"`
	State      string          `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ListEntriesResponse packages list results.
type ListEntriesResponse struct {
	Items      []EntryView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// EntryStatsSummary describes aggregate stats for a user's entries.
type EntryStatsSummary struct {
	Total             int            `json:"total"`
	Logged            int            `json:"logged"`
	Pending           int            `json:"pending"`
	Rejected          int            `json:"rejected"`
	CountByType       map[string]int `json:"count_by_type"`
	AverageConfidence float64        `json:"average_confidence"`
	LastEntryAt       *time.Time     `json:"last_entry_at,omitempty"`
}

// EntryStatsResponse merges summary stats with recent timeline entries.
type EntryStatsResponse struct {
	Summary       EntryStatsSummary `json:"summary"`
	Timeline      []EntryView       `json:"timeline"`
	TimelineLimit int               `json:"timeline_limit"`
	WindowSeconds int64             `json:"window_seconds"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toParsedSegment(activity *parse.Activity) ParsedSegment {
	segment := ParsedSegment{
		Type:       string(activity.Type),
		Fields:     activity.Fields,
		Confidence: activity.Confidence,
		Decision:   string(parse.Decide(activity.Confidence)),
		RawText:    activity.RawText,
		Timestamp:  activity.Timestamp,
		Warnings:   activity.Warnings,
	}
	if segment.Decision == string(parse.DecisionRephrase) {
		segment.Hint = parse.RephraseHint()
	}
	return segment
}

func toEntryView(agg domain.EntryAggregate) EntryView {
	return EntryView{
		EntryID:    agg.ID,
		TenantID:   agg.TenantID,
		UserID:     agg.UserID,
		EntryType:  string(agg.EntryType),
		Fields:     agg.Fields,
		Confidence: agg.Confidence,
		RawText:    agg.RawText,
		OccurredAt: agg.OccurredAt,
		Source:     agg.Source,
		Version:    agg.Version,
		State:      string(agg.State),
		CreatedAt:  agg.CreatedAt,
		UpdatedAt:  agg.UpdatedAt,
	}
}
