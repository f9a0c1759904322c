package instancesave

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/velmor/realmgo/internal/data"
	"github.com/velmor/realmgo/internal/model"
)

// ResetEventType classifies a scheduled reset event.
type ResetEventType uint8

const (
	// ResetEventDungeon expires a single dungeon instance; no fixed schedule.
	ResetEventDungeon ResetEventType = iota
	// ResetEventWarn notifies bound players of the time left before a cohort
	// resets.
	ResetEventWarn
	// ResetEventFinal resets every instance of a cohort and schedules the
	// next cycle.
	ResetEventFinal
)

// ResetEvent is one pending entry in the reset time queue.
//
// The reset time is a global property of each raid/heroic (map,difficulty)
// cohort: all its instances reset together, and InstanceID is zero. Dungeon
// events target exactly one instance.
type ResetEvent struct {
	Type       ResetEventType
	WarnTier   int // index into SchedulerConfig.WarnOffsets, warn events only
	MapID      uint32
	Difficulty model.Difficulty
	InstanceID uint32
}

// sameTarget reports whether two events address the same reset target.
// Type and tier are deliberately excluded so a recomputed cohort time can
// retract any stale event for the target.
func (e ResetEvent) sameTarget(o ResetEvent) bool {
	return e.MapID == o.MapID && e.Difficulty == o.Difficulty && e.InstanceID == o.InstanceID
}

type queueEntry struct {
	at    time.Time
	event ResetEvent
}

type cohortKey struct {
	mapID uint32
	diff  model.Difficulty
}

// SchedulerConfig holds deployment policy for reset scheduling.
type SchedulerConfig struct {
	// ResetEpoch anchors cohort reset boundaries so servers restarting at
	// different times converge on the same wall-clock reset.
	ResetEpoch time.Time

	// WarnOffsets are the lead times before a cohort reset at which warning
	// events fire, descending.
	WarnOffsets []time.Duration

	// DungeonGrace is the window between a dungeon instance becoming unused
	// and its expiry.
	DungeonGrace time.Duration
}

// DefaultSchedulerConfig returns the stock warning ladder and epoch.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ResetEpoch:   time.Date(2005, 1, 1, 4, 0, 0, 0, time.UTC),
		WarnOffsets:  []time.Duration{time.Hour, 30 * time.Minute, 15 * time.Minute, 5 * time.Minute},
		DungeonGrace: 2 * time.Hour,
	}
}

// ResetScheduler owns the canonical per-cohort reset times and a single
// time-ordered queue of pending reset/warning events, avoiding one timer per
// instance. It holds only scalar time data and event descriptors; firing an
// event calls back into the Manager, which mutates or destroys saves.
type ResetScheduler struct {
	mgr *Manager
	cfg SchedulerConfig

	// fast lookup for cohort reset times (raid/heroic only)
	resetTimeByMapDiff map[cohortKey]time.Time

	// ascending by timestamp; many events may share one timestamp and their
	// relative order is unspecified
	queue []queueEntry
}

func newResetScheduler(mgr *Manager, cfg SchedulerConfig) *ResetScheduler {
	if len(cfg.WarnOffsets) == 0 {
		cfg.WarnOffsets = DefaultSchedulerConfig().WarnOffsets
	}
	if cfg.ResetEpoch.IsZero() {
		cfg.ResetEpoch = DefaultSchedulerConfig().ResetEpoch
	}
	return &ResetScheduler{
		mgr:                mgr,
		cfg:                cfg,
		resetTimeByMapDiff: make(map[cohortKey]time.Time, 32),
	}
}

// LoadResetTimes computes the reset time of every fixed-schedule cohort from
// persisted state, or from the cohort's base interval anchored to the reset
// epoch when absent or already passed, then schedules the warning ladder and
// final reset per cohort. Dungeon instances are scheduled individually by the
// Manager, not here.
func (sc *ResetScheduler) LoadResetTimes(ctx context.Context, now time.Time) error {
	rows, err := sc.mgr.store.LoadResetTimes(ctx)
	if err != nil {
		return fmt.Errorf("load cohort reset times: %w", err)
	}

	persisted := make(map[cohortKey]time.Time, len(rows))
	for _, row := range rows {
		persisted[cohortKey{mapID: row.MapID, diff: row.Difficulty}] = time.Unix(row.ResetTime, 0)
	}

	var computed []ResetTimeRow
	var stale []cohortKey

	sc.mgr.mu.Lock()
	known := make(map[cohortKey]bool, len(persisted))
	scheduled := 0
	for _, md := range data.AllMapDifficulties() {
		if md.ResetInterval <= 0 {
			continue
		}
		key := cohortKey{mapID: md.MapID, diff: md.Difficulty}
		known[key] = true

		t := persisted[key]
		if t.IsZero() || !t.After(now) {
			t = sc.nextResetTime(now, md.ResetInterval)
			computed = append(computed, ResetTimeRow{MapID: md.MapID, Difficulty: md.Difficulty, ResetTime: t.Unix()})
		}
		sc.resetTimeByMapDiff[key] = t
		sc.scheduleCohortLocked(now, md.MapID, md.Difficulty, t)
		scheduled++
	}
	for key := range persisted {
		if !known[key] {
			stale = append(stale, key)
		}
	}
	queued := len(sc.queue)
	sc.mgr.mu.Unlock()

	for _, row := range computed {
		if err := sc.mgr.store.SaveResetTime(ctx, row); err != nil {
			return fmt.Errorf("save reset time for map %d %s: %w", row.MapID, row.Difficulty, err)
		}
	}

	// Persisted rows for cohorts no longer in the map data are dead weight.
	for _, key := range stale {
		slog.Warn("dropping reset time for unknown cohort",
			"mapID", key.mapID, "difficulty", key.diff)
		if err := sc.mgr.store.DeleteResetTime(ctx, key.mapID, key.diff); err != nil {
			slog.Error("delete stale reset time",
				"mapID", key.mapID, "difficulty", key.diff, "error", err)
		}
	}

	slog.Info("loaded cohort reset times", "cohorts", scheduled, "queued", queued)
	return nil
}

// GetResetTimeFor returns the cohort reset time for (mapID, difficulty), or
// the zero time if unknown.
func (sc *ResetScheduler) GetResetTimeFor(mapID uint32, d model.Difficulty) time.Time {
	sc.mgr.mu.RLock()
	defer sc.mgr.mu.RUnlock()
	return sc.resetTimeByMapDiff[cohortKey{mapID: mapID, diff: d}]
}

// SetResetTimeFor overwrites the cohort reset time. The event queue is not
// touched; callers must (re)schedule events separately.
func (sc *ResetScheduler) SetResetTimeFor(mapID uint32, d model.Difficulty, t time.Time) {
	sc.mgr.mu.Lock()
	defer sc.mgr.mu.Unlock()
	sc.resetTimeByMapDiff[cohortKey{mapID: mapID, diff: d}] = t
}

// MaxResetTimeFor returns the configured reset interval of a cohort.
func MaxResetTimeFor(md *data.MapDifficulty) time.Duration {
	if md == nil {
		return 0
	}
	return md.ResetInterval
}

// ScheduleReset inserts an event at the given time when add is true.
// Otherwise it removes the first queued event with the same target identity
// (map, difficulty, instance), regardless of timestamp, so a stale event
// never coexists with a recomputed one.
func (sc *ResetScheduler) ScheduleReset(add bool, at time.Time, event ResetEvent) {
	sc.mgr.mu.Lock()
	defer sc.mgr.mu.Unlock()
	if add {
		sc.insertLocked(at, event)
		return
	}
	for i := range sc.queue {
		if sc.queue[i].event.sameTarget(event) {
			sc.queue = append(sc.queue[:i], sc.queue[i+1:]...)
			return
		}
	}
}

// Update fires every queued event whose timestamp is at or before now, in
// ascending timestamp order. A missed tick only means events fire late; the
// queue is drained regardless of how far behind now is. Firing a final reset
// schedules the next cycle's ladder before Update returns. Store writes
// produced by fired events are collected and issued after the registry lock
// is released.
func (sc *ResetScheduler) Update(ctx context.Context, now time.Time) {
	var ops storeOps

	sc.mgr.mu.Lock()
	for len(sc.queue) > 0 && !sc.queue[0].at.After(now) {
		entry := sc.queue[0]
		sc.queue = sc.queue[1:]
		ev := entry.event

		switch ev.Type {
		case ResetEventDungeon:
			sc.mgr.resetInstanceLocked(ev.MapID, ev.InstanceID, &ops)

		case ResetEventWarn:
			timeLeft := sc.cfg.WarnOffsets[ev.WarnTier]
			sc.mgr.resetOrWarnAllLocked(ev.MapID, ev.Difficulty, true, timeLeft, &ops)

		case ResetEventFinal:
			sc.mgr.resetOrWarnAllLocked(ev.MapID, ev.Difficulty, false, 0, &ops)
			sc.rescheduleCohortLocked(now, ev.MapID, ev.Difficulty, &ops)
		}
	}
	sc.mgr.mu.Unlock()

	ops.flush(ctx, sc.mgr.store)
}

// rescheduleCohortLocked computes the next cycle's reset time after a final
// reset fired and queues the full ladder again, keeping the schedule
// perpetual. The persisted row write is collected into ops.
func (sc *ResetScheduler) rescheduleCohortLocked(now time.Time, mapID uint32, d model.Difficulty, ops *storeOps) {
	md := data.GetMapDifficulty(mapID, d)
	if md == nil || md.ResetInterval <= 0 {
		slog.Warn("fired final reset for cohort without fixed schedule",
			"mapID", mapID, "difficulty", d)
		return
	}

	next := sc.nextResetTime(now, md.ResetInterval)
	key := cohortKey{mapID: mapID, diff: d}
	sc.resetTimeByMapDiff[key] = next

	ops.saveResetTimes = append(ops.saveResetTimes,
		ResetTimeRow{MapID: mapID, Difficulty: d, ResetTime: next.Unix()})

	sc.scheduleCohortLocked(now, mapID, d, next)

	slog.Info("cohort reset rescheduled",
		"mapID", mapID,
		"difficulty", d,
		"next", next.Format(time.RFC3339))
}

// scheduleCohortLocked queues the warning ladder plus the final reset for a
// cohort resetting at t. Warnings whose lead time already passed are skipped.
func (sc *ResetScheduler) scheduleCohortLocked(now time.Time, mapID uint32, d model.Difficulty, t time.Time) {
	for tier, offset := range sc.cfg.WarnOffsets {
		warnAt := t.Add(-offset)
		if !warnAt.After(now) {
			continue
		}
		sc.insertLocked(warnAt, ResetEvent{
			Type:       ResetEventWarn,
			WarnTier:   tier,
			MapID:      mapID,
			Difficulty: d,
		})
	}
	sc.insertLocked(t, ResetEvent{
		Type:       ResetEventFinal,
		MapID:      mapID,
		Difficulty: d,
	})
}

// nextResetTime returns the first epoch-aligned interval boundary strictly
// after now.
func (sc *ResetScheduler) nextResetTime(now time.Time, interval time.Duration) time.Time {
	elapsed := now.Sub(sc.cfg.ResetEpoch)
	if elapsed < 0 {
		return sc.cfg.ResetEpoch.Add(interval)
	}
	periods := int64(elapsed/interval) + 1
	return sc.cfg.ResetEpoch.Add(time.Duration(periods) * interval)
}

func (sc *ResetScheduler) insertLocked(at time.Time, event ResetEvent) {
	idx := sort.Search(len(sc.queue), func(i int) bool {
		return sc.queue[i].at.After(at)
	})
	sc.queue = append(sc.queue, queueEntry{})
	copy(sc.queue[idx+1:], sc.queue[idx:])
	sc.queue[idx] = queueEntry{at: at, event: event}
}

// queueLen returns the number of pending events.
func (sc *ResetScheduler) queueLen() int {
	sc.mgr.mu.RLock()
	defer sc.mgr.mu.RUnlock()
	return len(sc.queue)
}
