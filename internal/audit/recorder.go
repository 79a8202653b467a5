package audit

import (
	"context"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/skill"
)

// Recorder writes skill outcomes to a Repository.
// It implements skill.OutcomeRecorder.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a recorder backed by repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// RecordOutcome stores one outcome.
func (r *Recorder) RecordOutcome(ctx context.Context, o skill.Outcome) error {
	return r.repo.Create(ctx, &Entry{
		SiteID:     o.SiteID,
		Kind:       string(o.Kind),
		Outcome:    o.Outcome,
		Address:    o.Address,
		DeviceName: o.DeviceName,
		SessionID:  o.SessionID,
		Token:      o.Token,
		Details:    o.Details,
		ElapsedMS:  o.Elapsed.Milliseconds(),
		CreatedAt:  o.At,
	})
}
