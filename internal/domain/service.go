// Package domain orchestrates parsing, the confirmation policy, and
// persistence for quick-logged entries.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/quicklog/internal/parse"
)

const entryVersion = "v1"

// Service coordinates the parse pipeline with the entry repository.
type Service struct {
	repo EntryRepository
}

// NewService constructs a Service.
func NewService(repo EntryRepository) *Service {
	return &Service{repo: repo}
}

// LogInput captures one free-text logging request from the API layer.
type LogInput struct {
	TenantID       string
	UserID         string
	Text           string
	TypeOverride   parse.ActivityType
	OccurredAt     time.Time
	Source         string
	IdempotencyKey string
	Now            time.Time
}

// Outcome is the per-segment result of a logging request. Entry is set
// when the segment was persisted (auto-logged or pending); Activity is set
// for freshly parsed segments and nil on idempotent replays; Hint carries
// example phrasings when the decision is rephrase.
type Outcome struct {
	Decision parse.Decision
	Activity *parse.Activity
	Entry    *EntryAggregate
	Hint     string
}

// LogText parses the text and applies the confirmation policy to every
// segment: confident parses are logged immediately, borderline ones are
// stored pending confirmation, and the rest come back as rephrase
// requests. The second return reports an idempotent replay.
func (s *Service) LogText(ctx context.Context, input LogInput) ([]Outcome, bool, error) {
	existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return replayOutcomes(existing), true, nil
	}

	activities, err := parse.Parse(parse.Input{
		Text:         input.Text,
		TypeOverride: input.TypeOverride,
		Now:          input.Now,
		OccurredAt:   input.OccurredAt,
	})
	if err != nil {
		return nil, false, err
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	outcomes := make([]Outcome, 0, len(activities))
	var toPersist []EntryAggregate
	persistIdx := make([]int, 0, len(activities))

	for i := range activities {
		activity := activities[i]
		decision := parse.Decide(activity.Confidence)
		outcome := Outcome{Decision: decision, Activity: &activities[i]}

		if decision == parse.DecisionRephrase {
			outcome.Hint = parse.RephraseHint()
			outcomes = append(outcomes, outcome)
			continue
		}

		fieldsJSON, marshalErr := json.Marshal(activity.Fields)
		if marshalErr != nil {
			return nil, false, fmt.Errorf("encode fields: %w", marshalErr)
		}

		state := EntryStateLogged
		if decision == parse.DecisionConfirm {
			state = EntryStatePending
		}

		toPersist = append(toPersist, EntryAggregate{
			ID:         uuid.NewString(),
			TenantID:   input.TenantID,
			UserID:     input.UserID,
			EntryType:  activity.Type,
			Fields:     fieldsJSON,
			Confidence: activity.Confidence,
			RawText:    activity.RawText,
			OccurredAt: activity.Timestamp,
			Source:     input.Source,
			Version:    entryVersion,
			State:      state,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		persistIdx = append(persistIdx, len(outcomes))
		outcomes = append(outcomes, outcome)
	}

	if len(toPersist) > 0 {
		if err := s.repo.CreateBatch(ctx, toPersist, input.IdempotencyKey); err != nil {
			// A concurrent retry with the same key won the insert race;
			// serve its entries instead of ours.
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				winners, findErr := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
				if findErr != nil {
					return nil, false, findErr
				}
				if len(winners) > 0 {
					return replayOutcomes(winners), true, nil
				}
			}
			return nil, false, err
		}
		for i := range toPersist {
			outcomes[persistIdx[i]].Entry = &toPersist[i]
		}
	}

	return outcomes, false, nil
}

func replayOutcomes(entries []EntryAggregate) []Outcome {
	outcomes := make([]Outcome, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		outcomes = append(outcomes, Outcome{
			Decision: decisionForState(entry.State),
			Entry:    &entry,
		})
	}
	return outcomes
}

// ResolvePending applies the user's yes/no answer to a pending entry.
func (s *Service) ResolvePending(ctx context.Context, tenantID, entryID string, accepted bool) (*EntryAggregate, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.State != EntryStatePending {
		return nil, fmt.Errorf("%w: state %q", ErrEntryNotPending, entry.State)
	}

	next, err := parse.StatePendingConfirmation.Resolve(accepted)
	if err != nil {
		return nil, err
	}

	state := EntryStateRejected
	reason := "user_rejected"
	if next == parse.StateAutoLogged {
		state = EntryStateLogged
		reason = "user_confirmed"
	}
	return s.repo.SetState(ctx, tenantID, entryID, state, reason)
}

// GetEntry fetches by ID.
func (s *Service) GetEntry(ctx context.Context, tenantID, entryID string) (*EntryAggregate, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// ListEntriesByUser fetches entries with cursor pagination.
func (s *Service) ListEntriesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]EntryAggregate, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}

// GetEntryStats aggregates counts and a recent timeline for a user.
func (s *Service) GetEntryStats(ctx context.Context, tenantID, userID string, window time.Duration, timelineLimit int) (EntrySummary, []EntryAggregate, error) {
	return s.repo.Summarize(ctx, tenantID, userID, window, timelineLimit)
}

func decisionForState(state EntryState) parse.Decision {
	if state == EntryStatePending {
		return parse.DecisionConfirm
	}
	return parse.DecisionAutoLog
}
