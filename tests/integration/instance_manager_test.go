package integration

import (
	"context"
	"time"

	"github.com/velmor/realmgo/internal/data"
	"github.com/velmor/realmgo/internal/db"
	"github.com/velmor/realmgo/internal/game/instancesave"
	"github.com/velmor/realmgo/internal/model"
)

// repoStore adapts db.InstanceRepository to instancesave.Store, mirroring the
// worldserver wiring.
type repoStore struct {
	repo *db.InstanceRepository
}

func (a *repoStore) LoadAllInstances(ctx context.Context) ([]instancesave.InstanceRow, error) {
	rows, err := a.repo.LoadAllInstances(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]instancesave.InstanceRow, len(rows))
	for i, r := range rows {
		result[i] = instancesave.InstanceRow{
			InstanceID: r.InstanceID,
			MapID:      r.MapID,
			Difficulty: model.Difficulty(r.Difficulty),
			ResetTime:  r.ResetTime,
			CanReset:   r.CanReset,
		}
	}
	return result, nil
}

func (a *repoStore) SaveInstance(ctx context.Context, row instancesave.InstanceRow) error {
	return a.repo.SaveInstance(ctx, db.InstanceRow{
		InstanceID: row.InstanceID,
		MapID:      row.MapID,
		Difficulty: uint8(row.Difficulty),
		ResetTime:  row.ResetTime,
		CanReset:   row.CanReset,
	})
}

func (a *repoStore) DeleteInstance(ctx context.Context, instanceID uint32) error {
	return a.repo.DeleteInstance(ctx, instanceID)
}

func (a *repoStore) DeleteExpiredInstances(ctx context.Context, before int64) (int64, error) {
	return a.repo.DeleteExpiredInstances(ctx, before)
}

func (a *repoStore) PackInstances(ctx context.Context) (int, error) {
	return a.repo.PackInstances(ctx)
}

func (a *repoStore) LoadResetTimes(ctx context.Context) ([]instancesave.ResetTimeRow, error) {
	rows, err := a.repo.LoadResetTimes(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]instancesave.ResetTimeRow, len(rows))
	for i, r := range rows {
		result[i] = instancesave.ResetTimeRow{
			MapID:      r.MapID,
			Difficulty: model.Difficulty(r.Difficulty),
			ResetTime:  r.ResetTime,
		}
	}
	return result, nil
}

func (a *repoStore) SaveResetTime(ctx context.Context, row instancesave.ResetTimeRow) error {
	return a.repo.SaveResetTime(ctx, db.ResetTimeRow{
		MapID:      row.MapID,
		Difficulty: uint8(row.Difficulty),
		ResetTime:  row.ResetTime,
	})
}

func (a *repoStore) DeleteResetTime(ctx context.Context, mapID uint32, difficulty model.Difficulty) error {
	return a.repo.DeleteResetTime(ctx, mapID, uint8(difficulty))
}

type noopLifecycle struct{}

func (noopLifecycle) OnInstanceReset(_, _ uint32) {}

func (s *IntegrationSuite) TestManagerInitAgainstDatabase() {
	now := time.Now()

	// expired unbound dungeon: swept at startup
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 1, MapID: 33, ResetTime: now.Add(-72 * time.Hour).Unix(), CanReset: true,
	}))
	// live dungeon: survives
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 2, MapID: 289, ResetTime: now.Add(time.Hour).Unix(), CanReset: true,
	}))

	mgr := instancesave.NewManager(&repoStore{repo: s.repo}, noopLifecycle{}, instancesave.DefaultSchedulerConfig())
	s.Require().NoError(mgr.Init(s.ctx, now))

	loaded, err := s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal(uint32(2), loaded[0].InstanceID)

	// every fixed-schedule cohort got a persisted future reset time
	resets, err := s.repo.LoadResetTimes(s.ctx)
	s.Require().NoError(err)

	fixed := 0
	for _, md := range data.AllMapDifficulties() {
		if md.ResetInterval > 0 {
			fixed++
		}
	}
	s.Require().Len(resets, fixed)
	for _, row := range resets {
		s.Greater(row.ResetTime, now.Unix(), "cohort (%d,%d)", row.MapID, row.Difficulty)
	}
}

func (s *IntegrationSuite) TestManagerCreatePersistReload() {
	mgr := instancesave.NewManager(&repoStore{repo: s.repo}, noopLifecycle{}, instancesave.DefaultSchedulerConfig())

	deadline := time.Now().Add(3 * time.Hour).Truncate(time.Second)
	save, err := mgr.AddInstanceSave(s.ctx, 33, 10, model.DifficultyNormal, deadline, true, false)
	s.Require().NoError(err)

	rows, err := s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)

	// a second manager reloading the row reconstructs the same deadline
	mgr2 := instancesave.NewManager(&repoStore{repo: s.repo}, noopLifecycle{}, instancesave.DefaultSchedulerConfig())
	row := rows[0]
	reloaded, err := mgr2.AddInstanceSave(s.ctx, row.MapID, row.InstanceID, model.Difficulty(row.Difficulty),
		time.Unix(row.ResetTime, 0), row.CanReset, true)
	s.Require().NoError(err)
	s.True(reloaded.ResetTime().Equal(save.ResetTime()),
		"reloaded reset time %v, want %v", reloaded.ResetTime(), save.ResetTime())
}
