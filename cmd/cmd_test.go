package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/observability"
	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
	"github.com/xkilldash9x/listing-refresher/internal/service"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

func TestMain(m *testing.M) {
	cfg := config.NewDefaultConfig()
	cfg.Logger.LogFile = ""
	cfg.Logger.Level = "error"
	observability.InitializeLogger(cfg.Logger)

	exitCode := m.Run()

	observability.Sync()
	os.Exit(exitCode)
}

// writeConfig writes a config file that keeps the database and log file in
// a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`logger:
  level: error
  log_file: %s
database:
  driver: sqlite
  path: %s
%s`, filepath.Join(dir, "refresher.log"), filepath.Join(dir, "refresher.db"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type failingFactory struct{ err error }

func (f failingFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service.Components, error) {
	return nil, f.err
}

func useFactory(t *testing.T, f service.ComponentFactory) {
	t.Helper()
	prev := componentFactory
	componentFactory = f
	t.Cleanup(func() { componentFactory = prev })
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "refresher version "+Version+"\n", out)

	out, err = execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "refresher version "+Version)
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "refresh:\n  click_attempts: 0\n")
	_, err := execute(t, "", "settings", "list", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "click_attempts")
}

func TestRunFailsWhenBotCannotStart(t *testing.T) {
	useFactory(t, failingFactory{err: errors.New("chrome not found")})

	_, err := execute(t, "", "run", "--config", writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize bot")
}

func TestServeIdleNeedsDashboard(t *testing.T) {
	useFactory(t, failingFactory{err: errors.New("must not be called")})

	_, err := execute(t, "", "serve", "--idle", "--config", writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--idle")
}

type fakeRunner struct {
	res        scheduler.CycleResult
	err        error
	cycles     int
	continuous int
}

func (f *fakeRunner) RunCycle(ctx context.Context) (scheduler.CycleResult, error) {
	f.cycles++
	return f.res, f.err
}

func (f *fakeRunner) RunContinuous(ctx context.Context) error {
	f.continuous++
	return nil
}

func TestRunBot(t *testing.T) {
	ctx := context.Background()
	done := scheduler.CycleResult{Listings: 3, Refreshed: 2, Attempted: 3}

	tests := []struct {
		name           string
		runner         *fakeRunner
		stdin          string
		continuousFlag bool
		wantErr        bool
		wantPrompt     bool
		wantContinuous int
	}{
		{name: "Declined", runner: &fakeRunner{res: done}, stdin: "n\n", wantPrompt: true},
		{name: "Accepted", runner: &fakeRunner{res: done}, stdin: "Y\n", wantPrompt: true, wantContinuous: 1},
		{name: "Accepted without newline", runner: &fakeRunner{res: done}, stdin: "yes", wantPrompt: true, wantContinuous: 1},
		{name: "Empty input", runner: &fakeRunner{res: done}, stdin: "", wantPrompt: true},
		{name: "Flag skips prompt", runner: &fakeRunner{res: done}, continuousFlag: true, wantContinuous: 1},
		{name: "Failed cycle", runner: &fakeRunner{err: errors.New("login failed")}, stdin: "y\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runBot(ctx, strings.NewReader(tt.stdin), &out, tt.runner, tt.continuousFlag, zap.NewNop())

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "test cycle failed")
				assert.NotContains(t, out.String(), continuePrompt)
				assert.Zero(t, tt.runner.continuous)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, tt.runner.cycles)
			assert.Contains(t, out.String(), "3 listings found, 2 of 3 refreshed")
			assert.Equal(t, tt.wantPrompt, strings.Contains(out.String(), continuePrompt))
			assert.Equal(t, tt.wantContinuous, tt.runner.continuous)
		})
	}
}

func TestRunBotReportsSkippedRefresh(t *testing.T) {
	var out bytes.Buffer
	runner := &fakeRunner{res: scheduler.CycleResult{Listings: 2, Skipped: "auto refresh disabled"}}
	require.NoError(t, runBot(context.Background(), strings.NewReader("n\n"), &out, runner, false, zap.NewNop()))
	assert.Contains(t, out.String(), "Refresh pass skipped: auto refresh disabled.")
}

func TestSettingsCommands(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "", "settings", "get", settings.RefreshIntervalHours, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "6\n", out)

	out, err = execute(t, "", "settings", "set", settings.RefreshIntervalHours, "8", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "refresh_interval_hours = 8\n", out)

	out, err = execute(t, "", "settings", "get", settings.RefreshIntervalHours, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)

	_, err = execute(t, "", "settings", "set", settings.AutoRefreshEnabled, "sometimes", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects a boolean")

	_, err = execute(t, "", "settings", "get", "no_such_setting", "--config", path)
	require.Error(t, err)

	out, err = execute(t, "", "settings", "list", "--config", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(settings.Defaults)+1)
	assert.Contains(t, lines[0], "KEY")
	assert.Contains(t, out, "Enable automatic listing refresh")
}
