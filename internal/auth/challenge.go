package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/locator"
)

// ChallengeKind names a security challenge the site can interpose.
type ChallengeKind string

const (
	ChallengeTwoFactor       ChallengeKind = "two_factor"
	ChallengeCheckpoint      ChallengeKind = "checkpoint"
	ChallengeUnusualActivity ChallengeKind = "unusual_activity"
	// ChallengeNone is reported when no detector matched.
	ChallengeNone ChallengeKind = "none"
)

// ChallengePriority is the order detectors are consulted in.
var ChallengePriority = []ChallengeKind{ChallengeTwoFactor, ChallengeCheckpoint, ChallengeUnusualActivity}

// ChallengeDetector recognises one kind of challenge on the current page.
type ChallengeDetector interface {
	Kind() ChallengeKind
	Detect(ctx context.Context, page schemas.Page) (bool, error)
}

// ChallengeResolver attempts to clear a detected challenge. None are
// registered by default; a challenge without a resolver fails the login.
type ChallengeResolver interface {
	Resolve(ctx context.Context, kind ChallengeKind, page schemas.Page) (bool, error)
}

// MarkerDetector matches a challenge by fragments of the current URL or of
// the visible page text.
type MarkerDetector struct {
	kind    ChallengeKind
	markers []string
	loc     *locator.Locator
}

// NewMarkerDetector returns a detector for kind. loc may be nil, in which
// case only the URL is checked.
func NewMarkerDetector(kind ChallengeKind, markers []string, loc *locator.Locator) *MarkerDetector {
	return &MarkerDetector{kind: kind, markers: markers, loc: loc}
}

func (d *MarkerDetector) Kind() ChallengeKind { return d.kind }

func (d *MarkerDetector) Detect(ctx context.Context, page schemas.Page) (bool, error) {
	url, err := page.URL(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read current url: %w", err)
	}
	url = strings.ToLower(url)
	for _, m := range d.markers {
		if m != "" && strings.Contains(url, strings.ToLower(m)) {
			return true, nil
		}
	}
	if d.loc == nil {
		return false, nil
	}
	for _, m := range d.markers {
		if m == "" {
			continue
		}
		if len(d.loc.LocateAll(ctx, schemas.ByPartialText, m)) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DefaultDetectors builds a MarkerDetector per configured kind, in priority
// order. Kinds without markers are skipped.
func DefaultDetectors(markers map[string][]string, loc *locator.Locator) []ChallengeDetector {
	var out []ChallengeDetector
	for _, kind := range ChallengePriority {
		m := markers[string(kind)]
		if len(m) == 0 {
			continue
		}
		out = append(out, NewMarkerDetector(kind, m, loc))
	}
	return out
}
