package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/product-scorer/internal/model"
	"github.com/sells-group/product-scorer/internal/store"
)

// LogOutcome reports what happened to the audit entry of one analysis.
type LogOutcome int

const (
	// LogSkipped means logging was disabled or the result came from cache.
	LogSkipped LogOutcome = iota
	// LogWritten means the entry was appended.
	LogWritten
	// LogFailed means the append failed. The analysis result is unaffected.
	LogFailed
)

func (o LogOutcome) String() string {
	switch o {
	case LogWritten:
		return "written"
	case LogFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// AuditLog appends AnalysisLogEntry rows and reports the outcome instead of
// failing the caller.
type AuditLog struct {
	store store.Store
	newID func() string
}

// NewAuditLog creates an AuditLog writing to st.
func NewAuditLog(st store.Store) *AuditLog {
	return &AuditLog{store: st, newID: uuid.NewString}
}

// Write appends entry, assigning an id when it has none.
func (l *AuditLog) Write(ctx context.Context, entry model.AnalysisLogEntry) (outcome LogOutcome) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("analysis: audit log panic",
				zap.String("product_id", entry.ProductID),
				zap.Any("panic", r),
			)
			outcome = LogFailed
		}
	}()

	if entry.ID == "" {
		entry.ID = l.newID()
	}
	if err := l.store.AppendAnalysisLog(ctx, entry); err != nil {
		zap.L().Warn("analysis: audit log write failed",
			zap.String("product_id", entry.ProductID),
			zap.Error(err),
		)
		return LogFailed
	}
	return LogWritten
}

// successEntry records a score change against the previous score, if any.
func successEntry(productID string, previous *model.ScoreRecord, newScore int, elapsed time.Duration, triggeredBy string, at time.Time) model.AnalysisLogEntry {
	e := model.AnalysisLogEntry{
		ProductID:        productID,
		NewScore:         &newScore,
		ProcessingTimeMs: elapsed.Milliseconds(),
		TriggeredBy:      triggeredBy,
		CreatedAt:        at,
	}
	if previous != nil {
		prev := previous.OverallScore
		change := newScore - prev
		e.PreviousScore = &prev
		e.ScoreChange = &change
	}
	return e
}

// failureEntry records a failed attempt. It carries no new score.
func failureEntry(productID string, previous *model.ScoreRecord, cause error, elapsed time.Duration, triggeredBy string, at time.Time) model.AnalysisLogEntry {
	e := model.AnalysisLogEntry{
		ProductID:        productID,
		ProcessingTimeMs: elapsed.Milliseconds(),
		TriggeredBy:      triggeredBy,
		ErrorMessage:     cause.Error(),
		CreatedAt:        at,
	}
	if previous != nil {
		prev := previous.OverallScore
		e.PreviousScore = &prev
	}
	return e
}
