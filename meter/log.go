// Package meter provides ready-made Meter implementations.
package meter

import (
	"log/slog"

	"github.com/lernio/mentor"
)

// LogMeter writes engine events to a structured logger.
type LogMeter struct {
	Logger *slog.Logger
}

var _ mentor.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter. A nil logger means slog.Default().
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmit(e mentor.AdmitEvent) {
	if e.Granted {
		m.Logger.Info("admit",
			"session", e.SessionID,
			"attempt", e.AttemptNum,
			"estimated_cost", e.EstimatedCost,
		)
		return
	}
	m.Logger.Warn("deny",
		"session", e.SessionID,
		"attempt", e.AttemptNum,
		"reason", e.Reason.String(),
		"estimated_cost", e.EstimatedCost,
	)
}

func (m *LogMeter) OnResult(e mentor.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"session", e.SessionID,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"prompt_tokens", e.Usage.PromptTokens,
			"completion_tokens", e.Usage.CompletionTokens,
			"cost", e.Cost,
		)
		return
	}
	m.Logger.Warn("result_error",
		"session", e.SessionID,
		"model", e.Model,
		"duration_ms", e.Duration.Milliseconds(),
		"cost", e.Cost,
		"error", e.Error,
	)
}

func (m *LogMeter) OnReview(e mentor.ReviewEvent) {
	m.Logger.Info("review",
		"session", e.SessionID,
		"item", e.ItemID,
		"recall", e.Recall.String(),
		"repetitions", e.Repetitions,
		"interval_days", e.IntervalDays,
		"due", e.Due,
	)
}
