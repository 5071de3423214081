package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/store/storetest"
)

type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func TestCountsClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Counts
		want Counts
	}{
		{"Consistent", Counts{5, 3, 2}, Counts{5, 3, 2}},
		{"Negative", Counts{-1, -2, -3}, Counts{0, 0, 0}},
		{"Too many successes", Counts{2, 5, 0}, Counts{2, 2, 0}},
		{"Too many failures", Counts{4, 3, 3}, Counts{4, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.clamp()
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.Successful+got.Failed, got.Processed)
		})
	}
}

func TestOperationLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemory()
	clock := &steppingClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), step: 3 * time.Second}
	rec := NewRecorder(mem, clock.now, zap.NewNop())

	op := rec.Start(ctx, schemas.OperationMarketplace, schemas.SubtypeRefreshListings, Meta{BrowserSessionID: "s-1", UserAgent: "ua"})
	require.Equal(t, int64(1), op.ID())
	assert.Equal(t, schemas.OperationStarted, op.Status())

	op.Complete(ctx, Counts{Processed: 3, Successful: 2, Failed: 1})
	op.Fail(ctx, Counts{}, errors.New("late"))

	ops := mem.Operations()
	require.Len(t, ops, 1)
	got := ops[0]
	assert.Equal(t, schemas.OperationCompleted, got.Status, "the first terminal status wins")
	assert.Equal(t, schemas.OperationCompleted, op.Status())
	assert.Equal(t, 3, got.ItemsProcessed)
	assert.Equal(t, 2, got.ItemsSuccessful)
	assert.Equal(t, 1, got.ItemsFailed)
	assert.Equal(t, 3, got.DurationSeconds)
	assert.Equal(t, "s-1", got.BrowserSessionID)
	assert.Equal(t, "ua", got.UserAgent)
	assert.Empty(t, got.ErrorDetail)
}

func TestOperationErrorCarriesStack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := storetest.NewMemory()
	rec := NewRecorder(mem, nil, nil)

	op := rec.Start(ctx, schemas.OperationMarketplace, schemas.SubtypeGetListings, Meta{})
	cancel()
	op.Error(ctx, Counts{Processed: 1, Failed: 1}, errors.New("boom"), "goroutine 1 [running]")

	got := mem.Operations()[0]
	assert.Equal(t, schemas.OperationError, got.Status, "a canceled context still finishes the record")
	assert.Equal(t, "boom", got.ErrorDetail)
	assert.Equal(t, "goroutine 1 [running]", got.StackTrace)
}

func TestRecorderIsBestEffort(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)

	t.Run("Start failure", func(t *testing.T) {
		mem := storetest.NewMemory()
		mem.StartErr = errors.New("disk full")
		rec := NewRecorder(mem, nil, zap.New(core))

		op := rec.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeLogin, Meta{})
		assert.Zero(t, op.ID())
		assert.NotPanics(t, func() { op.Complete(ctx, Counts{}) })
		assert.Empty(t, mem.Operations())
		assert.Equal(t, 1, logs.FilterMessage("Failed to record operation start.").Len())
	})

	t.Run("Finish failure", func(t *testing.T) {
		mem := storetest.NewMemory()
		rec := NewRecorder(mem, nil, zap.New(core))
		op := rec.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeLogin, Meta{})
		mem.FinishErr = errors.New("locked")

		op.Fail(ctx, Counts{}, errors.New("bad password"))
		assert.Equal(t, schemas.OperationFailed, op.Status())
		assert.Equal(t, 1, logs.FilterMessage("Failed to record operation result.").Len())
	})

	t.Run("No log", func(t *testing.T) {
		rec := NewRecorder(nil, nil, nil)
		op := rec.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeLogin, Meta{})
		op.Complete(ctx, Counts{})
		assert.Equal(t, schemas.OperationCompleted, op.Status())
	})
}

// ctxCheckingLog rejects writes whose context is already done, as a real
// database driver does.
type ctxCheckingLog struct {
	*storetest.Memory
}

func (l ctxCheckingLog) StartOperation(ctx context.Context, rec schemas.OperationRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.Memory.StartOperation(ctx, rec)
}

func (l ctxCheckingLog) FinishOperation(ctx context.Context, id int64, res schemas.OperationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Memory.FinishOperation(ctx, id, res)
}

func TestRecordsSurviveCanceledContext(t *testing.T) {
	mem := storetest.NewMemory()
	rec := NewRecorder(ctxCheckingLog{mem}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := rec.Start(ctx, schemas.OperationMarketplace, schemas.SubtypeGetListings, Meta{})
	require.NotZero(t, op.ID(), "the start is written even though ctx is done")
	op.Fail(ctx, Counts{Processed: 1, Failed: 1}, context.Canceled)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, schemas.OperationFailed, ops[0].Status)
	assert.Equal(t, context.Canceled.Error(), ops[0].ErrorDetail)
}
