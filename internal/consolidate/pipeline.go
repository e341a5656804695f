package consolidate

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rcliao/glucomem/internal/delta"
	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
	"github.com/rcliao/glucomem/internal/timeexpr"
)

// Turn statuses.
const (
	StatusSuccess   = "success"
	StatusNoDelta   = "no_delta"
	StatusMalformed = "malformed_delta"
	StatusCancelled = "cancelled"
)

// Input is one completed conversational turn.
type Input struct {
	RawAssistantText string    `json:"rawAssistantText"`
	UserMessage      string    `json:"userMessage"`
	UserID           string    `json:"userId"`
	Now              time.Time `json:"now"`
	SessionID        string    `json:"sessionId,omitempty"`
}

// Output reports what a turn changed. It never carries an error: failures
// are listed for operational logging only.
type Output struct {
	SessionID           string             `json:"sessionId"`
	Status              string             `json:"status"`
	EventsApplied       int                `json:"eventsApplied"`
	PatternsApplied     int                `json:"patternsApplied"`
	PreferencesApplied  int                `json:"preferencesApplied"`
	ProfileUpdated      bool               `json:"profileUpdated"`
	DomainRecordCounts  DomainRecordCounts `json:"domainRecordCounts"`
	SuggestionsRecorded int                `json:"suggestionsRecorded"`
	DeltaFound          bool               `json:"deltaFound"`
	Malformed           bool               `json:"malformed"`
	MalformedReason     string             `json:"malformedReason,omitempty"`
	Dropped             []delta.Drop       `json:"dropped,omitempty"`
	Failures            []Failure          `json:"failures,omitempty"`
	Habits              *DetectReport      `json:"habits,omitempty"`
}

// Consolidator runs the per-turn pipeline: resolve the turn time, decode the
// delta, reconcile it, detect habits, and log the turn.
type Consolidator struct {
	store      store.Store
	log        zerolog.Logger
	resolver   *timeexpr.Resolver
	reconciler *Reconciler
	detector   *Detector
}

// NewConsolidator wires a Reconciler and Detector over s.
func NewConsolidator(s store.Store, log zerolog.Logger, r *Reconciler, d *Detector) *Consolidator {
	if r == nil {
		r = NewReconciler(s, log)
	}
	if d == nil {
		d = NewDetector(s, log)
	}
	return &Consolidator{
		store:      s,
		log:        log.With().Str("component", "consolidator").Logger(),
		resolver:   r.resolver,
		reconciler: r,
		detector:   d,
	}
}

// ProcessTurn consolidates one turn. A malformed or missing delta still runs
// habit detection; a cancelled ctx skips both reconciliation and detection
// but keeps any rows already written.
func (c *Consolidator) ProcessTurn(ctx context.Context, in Input) Output {
	start := time.Now()
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	out := Output{SessionID: in.SessionID}
	if out.SessionID == "" {
		out.SessionID = ulid.Make().String()
	}
	log := c.log.With().Str("user_id", in.UserID).Str("session_id", out.SessionID).Logger()

	turnTime := c.resolver.Resolve(in.UserMessage, now)

	d, found, err := delta.Decode(in.RawAssistantText)
	out.DeltaFound = found
	switch {
	case err != nil:
		out.Malformed = true
		out.MalformedReason = err.Error()
		out.Status = StatusMalformed
		log.Warn().Err(err).Msg("malformed delta block")
	case !found:
		out.Status = StatusNoDelta
	default:
		out.Status = StatusSuccess
	}

	if ctx.Err() != nil {
		out.Status = StatusCancelled
	} else {
		if d != nil {
			res := c.reconciler.Apply(ctx, in.UserID, d, turnTime, now)
			out.apply(res)
			if res.Cancelled {
				out.Status = StatusCancelled
			}
		}
		if out.Status != StatusCancelled {
			rep := c.detector.Detect(ctx, in.UserID, now)
			out.Habits = &rep
		}
	}

	elapsed := time.Since(start)
	c.writeTurnLog(ctx, log, in, out, now, elapsed)

	turnsTotal.WithLabelValues(out.Status).Inc()
	turnDuration.Observe(elapsed.Seconds())
	log.Info().
		Str("status", out.Status).
		Int("events", out.EventsApplied).
		Int("patterns", out.PatternsApplied).
		Int("preferences", out.PreferencesApplied).
		Int("dropped", len(out.Dropped)).
		Int("failures", len(out.Failures)).
		Dur("elapsed", elapsed).
		Msg("turn consolidated")
	return out
}

func (o *Output) apply(r Result) {
	o.EventsApplied = r.EventsApplied
	o.PatternsApplied = r.PatternsApplied
	o.PreferencesApplied = r.PreferencesApplied
	o.ProfileUpdated = r.ProfileUpdated
	o.DomainRecordCounts = r.DomainRecordCounts
	o.SuggestionsRecorded = r.SuggestionsRecorded
	o.Dropped = r.Dropped
	o.Failures = r.Failures
}

func (c *Consolidator) writeTurnLog(ctx context.Context, log zerolog.Logger, in Input, out Output, now time.Time, elapsed time.Duration) {
	_, err := c.store.InsertTurnLog(context.WithoutCancel(ctx), model.TurnLog{
		UserID:        in.UserID,
		SessionID:     out.SessionID,
		UserMessage:   in.UserMessage,
		AssistantText: in.RawAssistantText,
		MemoryUpdates: map[string]any{
			"events_applied":       out.EventsApplied,
			"patterns_applied":     out.PatternsApplied,
			"preferences_applied":  out.PreferencesApplied,
			"suggestions_recorded": out.SuggestionsRecorded,
			"profile_updated":      out.ProfileUpdated,
			"dropped":              len(out.Dropped),
			"failures":             len(out.Failures),
		},
		DataRecorded: map[string]int{
			"blood_sugar": out.DomainRecordCounts.BloodSugar,
			"meal":        out.DomainRecordCounts.Meal,
			"exercise":    out.DomainRecordCounts.Exercise,
		},
		ProcessingTimeMS: elapsed.Milliseconds(),
		Status:           out.Status,
		CreatedAt:        now,
	})
	if err != nil {
		storageFailures.WithLabelValues("insert_turn_log").Inc()
		log.Error().Err(err).Msg("turn log write failed")
	}
}
