// Package personality computes per-repository trailing-30-day behavioral statistics and
// confidence-adjustment hints the Classifier folds into its prompt (§4.10).
package personality

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// Window is the trailing period over which statistics are computed.
const Window = 30 * 24 * time.Hour

// CacheTTL is how long a computed profile is served from cache before recomputation.
const CacheTTL = 15 * time.Minute

const flakyCategory = "flaky_test"

// Thresholds and adjustments for the four detected-pattern flags (§4.10).
const (
	flakyProneThreshold        = 0.3
	flakyProneAdjust           = -0.1
	fridaySpikeThreshold       = 0.4
	fridaySpikeAdjust          = -0.05
	categorySpecialistThresh   = 0.5
	categorySpecialistAdjust   = 0.1
	timeOfDayThreshold         = 0.3
)

// Profiler computes and caches PersonalityProfiles over Store data.
type Profiler struct {
	store store.Store
	clock substrate.Clock

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	profile   domain.PersonalityProfile
	expiresAt time.Time
}

// New constructs a Profiler backed by s.
func New(s store.Store, clk substrate.Clock) *Profiler {
	return &Profiler{store: s, clock: clk, cache: make(map[string]cacheEntry)}
}

// Get returns repository's cached profile if fresh, else recomputes it from Store.
func (p *Profiler) Get(ctx context.Context, repository string) (domain.PersonalityProfile, error) {
	now := p.clock.Now()

	p.mu.Lock()
	if entry, ok := p.cache[repository]; ok && now.Before(entry.expiresAt) {
		p.mu.Unlock()
		return entry.profile, nil
	}
	p.mu.Unlock()

	profile, err := p.compute(ctx, repository, now)
	if err != nil {
		return domain.PersonalityProfile{}, err
	}

	p.mu.Lock()
	p.cache[repository] = cacheEntry{profile: profile, expiresAt: now.Add(CacheTTL)}
	p.mu.Unlock()

	if err := p.store.SavePersonalityProfile(ctx, &profile); err != nil {
		return domain.PersonalityProfile{}, fmt.Errorf("personality: persist profile: %w", err)
	}
	return profile, nil
}

func (p *Profiler) compute(ctx context.Context, repository string, now time.Time) (domain.PersonalityProfile, error) {
	failures, err := p.store.ListFailures(ctx, repository, nil, 0)
	if err != nil {
		return domain.PersonalityProfile{}, fmt.Errorf("personality: list failures: %w", err)
	}

	since := now.Add(-Window)
	profile := domain.PersonalityProfile{
		Repository:         repository,
		CategoryHistogram:  map[string]int{},
		DayOfWeekHistogram: map[string]int{},
		HourHistogram:      map[int]int{},
		ComputedAt:         now,
	}

	var flakyCount, terminalCount, succeededCount int
	var totalResolutionMinutes float64
	var resolvedCount int

	for _, f := range failures {
		if f.DetectedAt.Before(since) {
			continue
		}
		profile.TotalFailures++
		profile.DayOfWeekHistogram[f.DetectedAt.Weekday().String()]++
		profile.HourHistogram[f.DetectedAt.Hour()]++

		analysis, err := p.store.GetAnalysis(ctx, f.ID)
		if err == nil && analysis != nil {
			profile.CategoryHistogram[analysis.Category]++
			if analysis.Category == flakyCategory {
				flakyCount++
			}
		}

		if f.Status.IsTerminal() {
			terminalCount++
			if f.Status == domain.FailureRemediated {
				succeededCount++
				resolvedCount++
				totalResolutionMinutes += f.UpdatedAt.Sub(f.DetectedAt).Minutes()
			}
		}
	}

	if profile.TotalFailures > 0 {
		profile.FlakyRate = float64(flakyCount) / float64(profile.TotalFailures)
	}
	if terminalCount > 0 {
		profile.SuccessRate = float64(succeededCount) / float64(terminalCount)
	}
	if resolvedCount > 0 {
		profile.AvgResolutionMinutes = totalResolutionMinutes / float64(resolvedCount)
	}

	profile.DetectedPatterns = detectPatterns(profile)
	return profile, nil
}

func dominantCategoryShare(hist map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	max := 0
	for _, v := range hist {
		if v > max {
			max = v
		}
	}
	return float64(max) / float64(total)
}

func dominantHourShare(hist map[int]int, total int) (int, float64) {
	if total == 0 {
		return 0, 0
	}
	bestHour, bestCount := 0, 0
	hours := make([]int, 0, len(hist))
	for h := range hist {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		if hist[h] > bestCount {
			bestHour, bestCount = h, hist[h]
		}
	}
	return bestHour, float64(bestCount) / float64(total)
}

func detectPatterns(profile domain.PersonalityProfile) []domain.DetectedPattern {
	var out []domain.DetectedPattern

	if profile.FlakyRate >= flakyProneThreshold {
		out = append(out, domain.DetectedPattern{
			Type: "flaky_prone", Frequency: profile.FlakyRate, ConfidenceAdjust: flakyProneAdjust,
			Recommendation: "treat classifier confidence for this repository conservatively; flakiness dominates failures",
		})
	}

	if profile.TotalFailures > 0 {
		fridayShare := float64(profile.DayOfWeekHistogram["Friday"]) / float64(profile.TotalFailures)
		if fridayShare >= fridaySpikeThreshold {
			out = append(out, domain.DetectedPattern{
				Type: "friday_spike", Frequency: fridayShare, ConfidenceAdjust: fridaySpikeAdjust,
				Recommendation: "failures cluster on Fridays; consider tighter pre-merge checks before the weekend",
			})
		}
	}

	dominantShare := dominantCategoryShare(profile.CategoryHistogram, profile.TotalFailures)
	if dominantShare >= categorySpecialistThresh {
		out = append(out, domain.DetectedPattern{
			Type: "category_specialist", Frequency: dominantShare, ConfidenceAdjust: categorySpecialistAdjust,
			Recommendation: "one failure category dominates; classifier confidence for that category can lean higher",
		})
	}

	hour, hourShare := dominantHourShare(profile.HourHistogram, profile.TotalFailures)
	if hourShare >= timeOfDayThreshold {
		out = append(out, domain.DetectedPattern{
			Type: "time_of_day", Frequency: hourShare, ConfidenceAdjust: 0,
			Recommendation: fmt.Sprintf("failures cluster around hour %d UTC", hour),
		})
	}

	return out
}

// ConfidenceAdjustment sums the bounded confidence adjustment for (repository,
// category), used by the Classifier after parsing. The Classifier itself clamps the
// resulting delta to ±20 points; this function reports the raw hint.
func (p *Profiler) ConfidenceAdjustment(ctx context.Context, repository, category string) (float64, error) {
	profile, err := p.Get(ctx, repository)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, dp := range profile.DetectedPatterns {
		if dp.Type == "category_specialist" && dominantCategoryMatches(profile, category) {
			total += dp.ConfidenceAdjust
			continue
		}
		if dp.Type != "category_specialist" {
			total += dp.ConfidenceAdjust
		}
	}
	return total, nil
}

func dominantCategoryMatches(profile domain.PersonalityProfile, category string) bool {
	max := 0
	dominant := ""
	for cat, count := range profile.CategoryHistogram {
		if count > max {
			max, dominant = count, cat
		}
	}
	return dominant == category
}
