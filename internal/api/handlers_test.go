package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/quicklog/internal/auth"
	"example.com/quicklog/internal/domain"
)

func writerClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeEntriesRead:  {},
			auth.ScopeEntriesWrite: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readerClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeEntriesRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestLogEntriesAutoLogsConfidentText(t *testing.T) {
	repo := &mockRepo{}
	handler := NewHandler(domain.NewService(repo))

	body := `{"user_id":"user-1","text":"ran 5k in 25 minutes","source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp logResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result got %d", len(resp.Results))
	}
	if resp.Results[0].Decision != "auto_log" {
		t.Fatalf("expected auto_log got %s", resp.Results[0].Decision)
	}
	if resp.Results[0].Entry == nil {
		t.Fatal("expected persisted entry in response")
	}
	if resp.Results[0].Entry.EntryType != "cardio" {
		t.Fatalf("expected cardio got %s", resp.Results[0].Entry.EntryType)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 persisted entry got %d", len(repo.created))
	}
}

func TestLogEntriesReturnsRephraseHintWithoutPersisting(t *testing.T) {
	repo := &mockRepo{}
	handler := NewHandler(domain.NewService(repo))

	body := `{"user_id":"user-1","text":"xyzzy plugh","source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp logResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Results[0].Decision != "rephrase" {
		t.Fatalf("expected rephrase got %s", resp.Results[0].Decision)
	}
	if resp.Results[0].Hint == "" {
		t.Fatal("expected a rephrase hint")
	}
	if len(repo.created) != 0 {
		t.Fatalf("rephrase segments must not be persisted, got %d", len(repo.created))
	}
}

func TestLogEntriesRequiresWriteScope(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"user_id":"user-1","text":"ran 5k","source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestLogEntriesValidatesBody(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"user_id":"","text":"ran 5k","source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestParsePreviewDoesNotPersist(t *testing.T) {
	repo := &mockRepo{}
	handler := NewHandler(domain.NewService(repo))

	body := `{"text":"weight 175 lbs, drank some water"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries/parse", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.parsePreview(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp parseResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Segments) != 2 {
		t.Fatalf("expected 2 segments got %d", len(resp.Segments))
	}
	if resp.Segments[0].Type != "weight" || resp.Segments[0].Decision != "auto_log" {
		t.Fatalf("unexpected first segment: %+v", resp.Segments[0])
	}
	if resp.Segments[1].Type != "water" || resp.Segments[1].Decision != "confirm" {
		t.Fatalf("unexpected second segment: %+v", resp.Segments[1])
	}
	if len(repo.created) != 0 {
		t.Fatal("preview must not persist entries")
	}
}

func TestParsePreviewRejectsEmptyText(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/entries/parse", strings.NewReader(`{"text":"   "}`))
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.parsePreview(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestConfirmEntryAccept(t *testing.T) {
	pending := domain.EntryAggregate{
		ID:         "entry-1",
		TenantID:   "tenant-1",
		UserID:     "user-1",
		EntryType:  "water",
		Fields:     json.RawMessage(`{"amount":1,"unit":"cups"}`),
		Confidence: 70,
		RawText:    "drank some water",
		OccurredAt: time.Now().UTC(),
		Source:     "api",
		Version:    "v1",
		State:      domain.EntryStatePending,
	}
	repo := &mockRepo{entries: map[string]*domain.EntryAggregate{"entry-1": &pending}}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/entries/entry-1/confirm", strings.NewReader(`{"accepted":true}`))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entryByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var view EntryView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.State != "logged" {
		t.Fatalf("expected logged got %s", view.State)
	}
	if repo.lastReason != "user_confirmed" {
		t.Fatalf("expected user_confirmed reason got %s", repo.lastReason)
	}
}

func TestConfirmEntryConflictWhenNotPending(t *testing.T) {
	logged := domain.EntryAggregate{
		ID:       "entry-2",
		TenantID: "tenant-1",
		State:    domain.EntryStateLogged,
	}
	repo := &mockRepo{entries: map[string]*domain.EntryAggregate{"entry-2": &logged}}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/entries/entry-2/confirm", strings.NewReader(`{"accepted":false}`))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entryByID(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestConfirmEntryMissingAcceptedField(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/entries/entry-3/confirm", strings.NewReader(`{}`))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.entryByID(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestEntryStatsSuccess(t *testing.T) {
	now := time.Date(2026, time.March, 14, 20, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		summary: domain.EntrySummary{
			Total:             4,
			Logged:            2,
			Pending:           1,
			Rejected:          1,
			CountByType:       map[string]int{"cardio": 2, "nutrition": 2},
			AverageConfidence: 84.5,
			LastEntryAt:       &now,
		},
		timeline: []domain.EntryAggregate{
			{ID: "entry-1", TenantID: "tenant-1", UserID: "user-1", EntryType: "cardio", State: domain.EntryStateLogged, OccurredAt: now},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/entries/stats?user_id=user-1&window_hours=0", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.entryStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp EntryStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Summary.Total != 4 {
		t.Fatalf("expected total 4 got %d", resp.Summary.Total)
	}
	if resp.Summary.CountByType["cardio"] != 2 {
		t.Fatalf("unexpected count_by_type: %+v", resp.Summary.CountByType)
	}
	if resp.WindowSeconds != 0 {
		t.Fatalf("expected window_seconds 0 got %d", resp.WindowSeconds)
	}
	if len(resp.Timeline) != 1 || resp.Timeline[0].EntryID != "entry-1" {
		t.Fatalf("unexpected timeline: %+v", resp.Timeline)
	}
}

func TestEntryStatsRequiresUserID(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/entries/stats", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.entryStats(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListEntriesRejectsInvalidCursor(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/entries?user_id=user-1&cursor=!!not-base64!!", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestEndpointsRequireClaims(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/entries?user_id=user-1", nil)
	rr := httptest.NewRecorder()
	handler.entries(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

// Decoding mirrors: ParsedSegment.Fields is an interface on the wire-out
// side, so tests read the JSON back through concrete shapes.
type parsedSegmentBody struct {
	Type       string          `json:"type"`
	Fields     json.RawMessage `json:"fields"`
	Confidence int             `json:"confidence"`
	Decision   string          `json:"decision"`
	RawText    string          `json:"raw_text"`
	Warnings   []string        `json:"warnings"`
	Hint       string          `json:"hint"`
}

type parseResponseBody struct {
	Segments []parsedSegmentBody `json:"segments"`
}

type logResultBody struct {
	Decision string             `json:"decision"`
	Parsed   *parsedSegmentBody `json:"parsed"`
	Entry    *EntryView         `json:"entry"`
	Hint     string             `json:"hint"`
}

type logResponseBody struct {
	Results []logResultBody `json:"results"`
	Replay  bool            `json:"idempotent_replay"`
}

type mockRepo struct {
	created    []domain.EntryAggregate
	entries    map[string]*domain.EntryAggregate
	summary    domain.EntrySummary
	timeline   []domain.EntryAggregate
	lastReason string
}

func (m *mockRepo) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) ([]domain.EntryAggregate, error) {
	return nil, nil
}

func (m *mockRepo) CreateBatch(ctx context.Context, entries []domain.EntryAggregate, idempotencyKey string) error {
	m.created = append(m.created, entries...)
	return nil
}

func (m *mockRepo) Get(ctx context.Context, tenantID, entryID string) (*domain.EntryAggregate, error) {
	if m.entries == nil {
		return nil, nil
	}
	return m.entries[entryID], nil
}

func (m *mockRepo) SetState(ctx context.Context, tenantID, entryID string, state domain.EntryState, reason string) (*domain.EntryAggregate, error) {
	entry, ok := m.entries[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	entry.State = state
	m.lastReason = reason
	return entry, nil
}

func (m *mockRepo) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.EntryAggregate, *domain.Cursor, error) {
	if limit <= 0 || limit > len(m.timeline) {
		limit = len(m.timeline)
	}
	out := make([]domain.EntryAggregate, limit)
	copy(out, m.timeline[:limit])
	return out, nil, nil
}

func (m *mockRepo) Summarize(ctx context.Context, tenantID, userID string, window time.Duration, timelineLimit int) (domain.EntrySummary, []domain.EntryAggregate, error) {
	return m.summary, m.timeline, nil
}
