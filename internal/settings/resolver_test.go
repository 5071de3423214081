package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mapSource struct {
	rows map[string]schemas.Setting
	err  error
}

func (m *mapSource) GetSetting(_ context.Context, key string) (schemas.Setting, bool, error) {
	if m.err != nil {
		return schemas.Setting{}, false, m.err
	}
	s, ok := m.rows[key]
	return s, ok, nil
}

func TestDefaults(t *testing.T) {
	assert.Len(t, Defaults, 15)

	seen := make(map[string]bool)
	for _, s := range Defaults {
		assert.False(t, seen[s.Key], "duplicate key %s", s.Key)
		seen[s.Key] = true
		_, err := Validate(s.Key, s.Value)
		assert.NoError(t, err, "default for %s must parse as %s", s.Key, s.Type)
	}

	d, ok := Default(RefreshIntervalHours)
	require.True(t, ok)
	assert.Equal(t, "6", d.Value)
	assert.Equal(t, schemas.SettingInteger, d.Type)
}

func TestResolverLayering(t *testing.T) {
	ctx := context.Background()
	src := &mapSource{rows: map[string]schemas.Setting{
		MaxLoginAttempts: {Key: MaxLoginAttempts, Value: "5"},
		HeadlessMode:     {Key: HeadlessMode, Value: "true"},
	}}
	r := NewResolver(src, map[string]string{
		MaxLoginAttempts:     "7",
		RefreshIntervalHours: "2",
	}, zap.NewNop())

	assert.Equal(t, 5, r.Int(ctx, MaxLoginAttempts), "database row wins over override")
	assert.Equal(t, 2*time.Hour, r.Hours(ctx, RefreshIntervalHours), "override wins over default")
	assert.Equal(t, 60*time.Second, r.Seconds(ctx, PageLoadTimeout), "default used when nothing else is set")
	assert.True(t, r.Bool(ctx, HeadlessMode))
	assert.True(t, r.Bool(ctx, ScreenshotOnError))
	assert.Equal(t, "US", r.String(ctx, MarketplaceRegion))
	assert.Equal(t, "", r.String(ctx, "unknown_key"))
	assert.Equal(t, 0, r.Int(ctx, "unknown_key"))
}

func TestResolverFallsThroughMalformedValues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &mapSource{rows: map[string]schemas.Setting{
		ImplicitWaitTime:  {Key: ImplicitWaitTime, Value: "thirty"},
		ScreenshotOnError: {Key: ScreenshotOnError, Value: "sometimes"},
	}}
	r := NewResolver(src, nil, zap.New(core))

	assert.Equal(t, 30, r.Int(context.Background(), ImplicitWaitTime))
	assert.True(t, r.Bool(context.Background(), ScreenshotOnError))
	assert.Equal(t, 2, logs.FilterMessageSnippet("malformed").Len())
}

func TestResolverSourceError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(&mapSource{err: errors.New("database is locked")}, nil, zap.New(core))

	assert.Equal(t, 3, r.Int(context.Background(), MaxLoginAttempts))
	assert.Equal(t, 1, logs.FilterMessageSnippet("Failed to read setting").Len())
}

func TestResolverWithoutSource(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	assert.Equal(t, 4, r.Int(context.Background(), MaxRefreshPerDay))
}

func TestValidate(t *testing.T) {
	typ, err := Validate(RefreshIntervalHours, "12")
	assert.NoError(t, err)
	assert.Equal(t, schemas.SettingInteger, typ)

	_, err = Validate(RefreshIntervalHours, "twelve")
	assert.ErrorContains(t, err, "expects an integer")

	_, err = Validate(AutoRefreshEnabled, "maybe")
	assert.ErrorContains(t, err, "expects a boolean")

	typ, err = Validate("custom_note", "anything")
	assert.NoError(t, err)
	assert.Equal(t, schemas.SettingString, typ)
}
