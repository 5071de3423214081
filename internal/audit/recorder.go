// Package audit writes the bot_operations trail. Every logical unit of work
// gets one record that starts as "started" and receives exactly one terminal
// status. Writes are best effort: a failing datastore never fails the work
// being audited.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// Counts are the item tallies reported when an operation finishes.
type Counts struct {
	Processed  int
	Successful int
	Failed     int
}

// clamp enforces Successful + Failed <= Processed with no negative values.
func (c Counts) clamp() Counts {
	if c.Processed < 0 {
		c.Processed = 0
	}
	if c.Successful < 0 {
		c.Successful = 0
	}
	if c.Failed < 0 {
		c.Failed = 0
	}
	if c.Successful > c.Processed {
		c.Successful = c.Processed
	}
	if c.Failed > c.Processed-c.Successful {
		c.Failed = c.Processed - c.Successful
	}
	return c
}

// Recorder starts operation records against an OperationLog.
type Recorder struct {
	log    schemas.OperationLog
	now    func() time.Time
	logger *zap.Logger
}

// NewRecorder returns a Recorder. A nil log produces operations that only
// log locally.
func NewRecorder(log schemas.OperationLog, now func() time.Time, logger *zap.Logger) *Recorder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{log: log, now: now, logger: logger.Named("audit")}
}

// Meta is the browser context stamped on a new record.
type Meta struct {
	BrowserSessionID string
	UserAgent        string
}

// Start appends a started record and returns its handle.
func (r *Recorder) Start(ctx context.Context, typ schemas.OperationType, subtype string, meta Meta) *Operation {
	op := &Operation{
		rec:     r,
		typ:     typ,
		subtype: subtype,
		started: r.now(),
	}
	if r.log == nil {
		return op
	}

	// A unit of work started under an already canceled context still leaves a
	// record; finish writes the terminal status the same way.
	id, err := r.log.StartOperation(context.WithoutCancel(ctx), schemas.OperationRecord{
		OperationType:    typ,
		Subtype:          subtype,
		Status:           schemas.OperationStarted,
		StartedAt:        op.started,
		BrowserSessionID: meta.BrowserSessionID,
		UserAgent:        meta.UserAgent,
	})
	if err != nil {
		r.logger.Warn("Failed to record operation start.",
			zap.String("operation", string(typ)+"/"+subtype),
			zap.Error(err),
		)
		return op
	}
	op.id = id
	return op
}

// Operation is a started record awaiting its terminal status.
type Operation struct {
	rec     *Recorder
	typ     schemas.OperationType
	subtype string
	id      int64
	started time.Time

	mu       sync.Mutex
	finished bool
	status   schemas.OperationStatus
}

// ID is the datastore id, or 0 when the start was not recorded.
func (o *Operation) ID() int64 { return o.id }

// Status reports the terminal status applied, or started.
func (o *Operation) Status() schemas.OperationStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.finished {
		return schemas.OperationStarted
	}
	return o.status
}

// Complete finishes the operation as completed.
func (o *Operation) Complete(ctx context.Context, c Counts) {
	o.finish(ctx, schemas.OperationCompleted, c, "", "")
}

// Fail finishes the operation as failed: the work ran and did not succeed.
func (o *Operation) Fail(ctx context.Context, c Counts, cause error) {
	o.finish(ctx, schemas.OperationFailed, c, errText(cause), "")
}

// Error finishes the operation as error: the work was cut short by an
// unexpected fault. stack is stored alongside the message.
func (o *Operation) Error(ctx context.Context, c Counts, cause error, stack string) {
	o.finish(ctx, schemas.OperationError, c, errText(cause), stack)
}

// finish applies the terminal status once; later calls are ignored.
func (o *Operation) finish(ctx context.Context, status schemas.OperationStatus, c Counts, detail, stack string) {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return
	}
	o.finished = true
	o.status = status
	o.mu.Unlock()

	c = c.clamp()
	ended := o.rec.now()
	duration := int(ended.Sub(o.started) / time.Second)
	if duration < 0 {
		duration = 0
	}

	log := o.rec.logger.With(
		zap.String("operation", string(o.typ)+"/"+o.subtype),
		zap.String("status", string(status)),
		zap.Int("processed", c.Processed),
		zap.Int("successful", c.Successful),
		zap.Int("failed", c.Failed),
	)
	log.Debug("Operation finished.", zap.Int("duration_seconds", duration))

	if o.rec.log == nil || o.id == 0 {
		return
	}
	// The record must reach a terminal state even if the work's context was
	// canceled.
	err := o.rec.log.FinishOperation(context.WithoutCancel(ctx), o.id, schemas.OperationResult{
		Status:          status,
		ItemsProcessed:  c.Processed,
		ItemsSuccessful: c.Successful,
		ItemsFailed:     c.Failed,
		EndedAt:         ended,
		DurationSeconds: duration,
		ErrorDetail:     detail,
		StackTrace:      stack,
	})
	if err != nil {
		log.Warn("Failed to record operation result.", zap.Int64("id", o.id), zap.Error(err))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
