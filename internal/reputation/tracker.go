// ABOUTME: Tracks per-author trust profiles aggregated from observed scan scores.
// ABOUTME: Advisory only; a clean artifact from a low-trust author still scans clean.

package reputation

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

const (
	// highRiskScore is the risk score at which a single package counts
	// against its author.
	highRiskScore = 25

	// neutralTrust is reported for authors with no observed packages.
	neutralTrust = 50.0

	// reportPenalty is subtracted from the trust score for each confirmed
	// community threat report against the author.
	reportPenalty = 20.0

	// warningTrust is the trust score below which results carry a warning.
	warningTrust = 40.0
)

type authorStats struct {
	totalPackages    int
	scoreSum         float64
	highRiskCount    int
	confirmedReports int
}

// Tracker maintains publisher reputation profiles in memory, keyed by author
// id. All methods are safe for concurrent use.
type Tracker struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	authors map[string]*authorStats
}

func NewTracker(logger *logrus.Logger) *Tracker {
	return &Tracker{
		logger:  logger,
		authors: make(map[string]*authorStats),
	}
}

// Observe folds one scan score into the author's profile and returns the
// updated reputation. Unknown authors start from an empty profile.
func (t *Tracker) Observe(authorID string, score int) *types.PublisherReputation {
	t.mu.Lock()
	stats, ok := t.authors[authorID]
	if !ok {
		stats = &authorStats{}
		t.authors[authorID] = stats
	}
	stats.totalPackages++
	stats.scoreSum += float64(score)
	if score >= highRiskScore {
		stats.highRiskCount++
	}
	rep := t.profile(authorID, stats)
	t.mu.Unlock()

	if rep.Warning {
		t.logger.WithFields(logrus.Fields{
			"component":   "reputation",
			"author_id":   authorID,
			"trust_score": rep.TrustScore,
		}).Warn("Low-trust publisher observed")
	}
	return rep
}

// PenalizeConfirmedReport applies the trust penalty for a confirmed community
// threat report. It is an explicit step driven by the review pipeline, never
// triggered automatically by a report's mere existence.
func (t *Tracker) PenalizeConfirmedReport(authorID string) *types.PublisherReputation {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.authors[authorID]
	if !ok {
		stats = &authorStats{}
		t.authors[authorID] = stats
	}
	stats.confirmedReports++
	return t.profile(authorID, stats)
}

// Reputation returns the author's current profile. Authors never observed get
// a neutral profile rather than an error.
func (t *Tracker) Reputation(authorID string) *types.PublisherReputation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats, ok := t.authors[authorID]
	if !ok {
		return &types.PublisherReputation{
			AuthorID:   authorID,
			TrustScore: neutralTrust,
		}
	}
	return t.profile(authorID, stats)
}

// profile computes the derived reputation fields. Caller holds the lock.
func (t *Tracker) profile(authorID string, stats *authorStats) *types.PublisherReputation {
	rep := &types.PublisherReputation{
		AuthorID:      authorID,
		TotalPackages: stats.totalPackages,
		HighRiskCount: stats.highRiskCount,
	}
	if stats.totalPackages == 0 {
		rep.TrustScore = neutralTrust - reportPenalty*float64(stats.confirmedReports)
	} else {
		rep.AvgRiskScore = stats.scoreSum / float64(stats.totalPackages)
		ratio := float64(stats.highRiskCount) / float64(stats.totalPackages)
		rep.TrustScore = 100 - 100*ratio - reportPenalty*float64(stats.confirmedReports)
	}
	if rep.TrustScore < 0 {
		rep.TrustScore = 0
	}
	if rep.TrustScore > 100 {
		rep.TrustScore = 100
	}
	rep.Warning = rep.TrustScore < warningTrust
	return rep
}
