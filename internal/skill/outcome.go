package skill

import (
	"context"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
)

// Outcome values recorded for commands.
const (
	OutcomeDispatched = "dispatched"
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
	OutcomeExpired    = "expired"
)

// Outcome describes one step in a command's life: its dispatch, its result,
// or its expiry.
type Outcome struct {
	SiteID     string
	Kind       correlation.Kind
	Outcome    string
	Address    string
	DeviceName string
	SessionID  string
	Token      string

	// Details is free text, e.g. the spoken response or a publish error.
	Details string

	// Elapsed is the time between dispatch and result; zero for dispatches.
	Elapsed time.Duration
	At      time.Time
}

// OutcomeRecorder persists command outcomes. Optional.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// Telemetry receives command and device metrics. Optional.
type Telemetry interface {
	WriteCommand(siteID, kind, outcome string, elapsed time.Duration)
	WriteSiteDevices(siteID string, available, paired, connected int)
	WriteDiscovery(siteID string, found int)
}

// Notifier mirrors spoken notifications to live subscribers. Optional.
type Notifier interface {
	Notify(siteID, text string)
}

// Logger defines the logging interface used by the skill.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
