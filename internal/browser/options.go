// internal/browser/options.go
package browser

import (
	"math/rand"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/listing-refresher/internal/config"
)

// Options describe a single Chrome launch.
type Options struct {
	Headless     bool
	ExecPath     string
	Args         []string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
}

// NewOptions derives launch options from the browser config. headless comes
// from the headless_mode setting and wins over the config fallback.
func NewOptions(cfg config.BrowserConfig, headless bool, rng *rand.Rand) Options {
	return Options{
		Headless:     headless,
		ExecPath:     cfg.ExecPath,
		Args:         cfg.Args,
		UserAgent:    PickUserAgent(cfg.UserAgents, rng),
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
	}
}

// PickUserAgent returns one of agents at random, or "" when none are
// configured (Chrome then reports its own).
func PickUserAgent(agents []string, rng *rand.Rand) string {
	if len(agents) == 0 {
		return ""
	}
	if rng == nil {
		return agents[rand.Intn(len(agents))]
	}
	return agents[rng.Intn(len(agents))]
}

// LaunchFlags returns the command line flags layered on top of the chromedp
// defaults, keyed without the leading dashes.
func LaunchFlags(o Options) map[string]any {
	flags := map[string]any{
		// Containers and hardened hosts.
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,

		// Hide the automation surface the site checks for.
		"disable-blink-features": "AutomationControlled",
		"enable-automation":      false,
		"disable-notifications":  true,
		"disable-popup-blocking": true,
	}
	if !o.Headless {
		flags["headless"] = false
		flags["hide-scrollbars"] = false
		flags["mute-audio"] = false
	}

	for _, arg := range o.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		key, value, hasValue := strings.Cut(arg, "=")
		if !hasValue {
			flags[key] = true
			continue
		}
		flags[key] = value
	}
	return flags
}

// AllocatorOptions translates o into chromedp exec allocator options.
func AllocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	for name, value := range LaunchFlags(o) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}
