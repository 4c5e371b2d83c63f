package updates

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/providers"
)

// Lookup outcomes, as reported to the Recorder.
const (
	OutcomeUpdate   = "update"
	OutcomeNoUpdate = "no_update"
	OutcomeFailed   = "failed"
)

// Filter lists what a refresh should leave out.
type Filter struct {
	IgnoredApps     []string
	IgnoredVersions []int64
}

// AggregatorConfig holds the fan-out settings.
type AggregatorConfig struct {
	Concurrency   int
	LookupTimeout time.Duration
}

// Aggregator queries every enabled source for every installed application and merges the results.
type Aggregator struct {
	concurrency int
	timeout     time.Duration
	recorder    Recorder
}

// NewAggregator returns an aggregator. A nil recorder is allowed.
func NewAggregator(config AggregatorConfig, recorder Recorder) *Aggregator {
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}

	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 30 * time.Second
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Aggregator{
		concurrency: config.Concurrency,
		timeout:     config.LookupTimeout,
		recorder:    recorder,
	}
}

// Aggregate returns the merged list of updates for the applications.
//
// The sources slice is in priority order: when several sources report an update for the same
// package, the first one wins no matter which answered first. The result is sorted by source
// priority then package name. Lookup failures only remove that source's answer for that
// application. emit, if not nil, receives a snapshot each time a new candidate arrives.
func (a *Aggregator) Aggregate(ctx context.Context, apps []api.InstalledApp, sources []providers.Source, filter Filter, emit func([]api.AppUpdate)) []api.AppUpdate {
	priority := make(map[api.SourceID]int, len(sources))
	for i, source := range sources {
		priority[source.ID()] = i
	}

	var (
		mu         sync.Mutex
		candidates []api.UpdateCandidate
	)

	g := errgroup.Group{}
	g.SetLimit(a.concurrency)

dispatch:
	for _, app := range apps {
		if slices.Contains(filter.IgnoredApps, app.PackageName) {
			continue
		}

		for _, source := range sources {
			if ctx.Err() != nil {
				break dispatch
			}

			g.Go(func() error {
				candidate := a.lookup(ctx, source, app)
				if candidate == nil {
					return nil
				}

				mu.Lock()
				defer mu.Unlock()

				candidates = append(candidates, *candidate)

				if emit != nil {
					emit(reduce(candidates, priority, filter))
				}

				return nil
			})
		}
	}

	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()

	result := reduce(candidates, priority, filter)

	if emit != nil {
		emit(result)
	}

	return result
}

// lookup runs one source query under the per-call timeout, returning nil for anything but an update.
func (a *Aggregator) lookup(ctx context.Context, source providers.Source, app api.InstalledApp) *api.UpdateCandidate {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()

	candidate, err := source.Lookup(ctx, app)

	switch {
	case err == nil && candidate != nil && candidate.IsNewer():
		a.recorder.ObserveLookup(source.ID(), OutcomeUpdate, time.Since(start))

		candidate.Source = source.ID()

		return candidate
	case err == nil || errors.Is(err, providers.ErrNoUpdateAvailable):
		a.recorder.ObserveLookup(source.ID(), OutcomeNoUpdate, time.Since(start))
	default:
		a.recorder.ObserveLookup(source.ID(), OutcomeFailed, time.Since(start))

		slog.WarnContext(ctx, "Source lookup failed", "source", source.ID(), "package", app.PackageName, "err", err)
	}

	return nil
}

// reduce keeps the highest priority candidate per package, applies version ignores and sorts.
func reduce(candidates []api.UpdateCandidate, priority map[api.SourceID]int, filter Filter) []api.AppUpdate {
	best := map[string]api.UpdateCandidate{}

	for _, candidate := range candidates {
		current, ok := best[candidate.PackageName]
		if !ok || priority[candidate.Source] < priority[current.Source] {
			best[candidate.PackageName] = candidate
		}
	}

	updates := make([]api.AppUpdate, 0, len(best))
	for _, candidate := range best {
		updates = append(updates, NewAppUpdate(candidate))
	}

	updates = FilterIgnoredVersions(updates, filter.IgnoredVersions)

	slices.SortFunc(updates, func(a, b api.AppUpdate) int {
		pa, pb := priority[a.Source], priority[b.Source]
		if pa != pb {
			return pa - pb
		}

		return strings.Compare(a.PackageName, b.PackageName)
	})

	return updates
}
