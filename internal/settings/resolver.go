// Package settings resolves typed bot settings at their point of use.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"go.uber.org/zap"
)

// Resolver reads a setting from bot_settings, then from the configured
// overrides, then from Defaults. Malformed values fall through to the next
// layer instead of failing the caller.
type Resolver struct {
	src       schemas.SettingsSource
	overrides map[string]string
	logger    *zap.Logger
}

// NewResolver creates a Resolver. src may be nil, in which case only the
// overrides and defaults are consulted.
func NewResolver(src schemas.SettingsSource, overrides map[string]string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		src:       src,
		overrides: overrides,
		logger:    logger.Named("settings"),
	}
}

// candidates returns the raw values for key, most specific first.
func (r *Resolver) candidates(ctx context.Context, key string) []string {
	var values []string
	if r.src != nil {
		s, ok, err := r.src.GetSetting(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("Failed to read setting; using fallback.", zap.String("key", key), zap.Error(err))
		case ok:
			values = append(values, s.Value)
		}
	}
	if v, ok := r.overrides[key]; ok {
		values = append(values, v)
	}
	if d, ok := Default(key); ok {
		values = append(values, d.Value)
	}
	return values
}

// String returns the resolved value of key, or "" if it is unknown.
func (r *Resolver) String(ctx context.Context, key string) string {
	if values := r.candidates(ctx, key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// Int returns the resolved integer value of key, or 0.
func (r *Resolver) Int(ctx context.Context, key string) int {
	for _, v := range r.candidates(ctx, key) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
		r.logger.Warn("Ignoring malformed integer setting.", zap.String("key", key), zap.String("value", v))
	}
	return 0
}

// Bool returns the resolved boolean value of key, or false.
func (r *Resolver) Bool(ctx context.Context, key string) bool {
	for _, v := range r.candidates(ctx, key) {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
		r.logger.Warn("Ignoring malformed boolean setting.", zap.String("key", key), zap.String("value", v))
	}
	return false
}

// Seconds interprets an integer setting as a number of seconds.
func (r *Resolver) Seconds(ctx context.Context, key string) time.Duration {
	return time.Duration(r.Int(ctx, key)) * time.Second
}

// Hours interprets an integer setting as a number of hours.
func (r *Resolver) Hours(ctx context.Context, key string) time.Duration {
	return time.Duration(r.Int(ctx, key)) * time.Hour
}

// Validate checks that value parses as the declared type of key. Unknown keys
// are accepted as strings.
func Validate(key, value string) (schemas.SettingType, error) {
	d, ok := Default(key)
	if !ok {
		return schemas.SettingString, nil
	}
	switch d.Type {
	case schemas.SettingInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return d.Type, fmt.Errorf("setting %s expects an integer: %w", key, err)
		}
	case schemas.SettingBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return d.Type, fmt.Errorf("setting %s expects a boolean: %w", key, err)
		}
	}
	return d.Type, nil
}
