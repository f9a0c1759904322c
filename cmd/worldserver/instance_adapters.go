package main

import (
	"context"

	"github.com/velmor/realmgo/internal/db"
	"github.com/velmor/realmgo/internal/game/instancesave"
	"github.com/velmor/realmgo/internal/model"
)

// instanceStoreAdapter adapts db.InstanceRepository to instancesave.Store.
type instanceStoreAdapter struct {
	repo *db.InstanceRepository
}

func (a *instanceStoreAdapter) LoadAllInstances(ctx context.Context) ([]instancesave.InstanceRow, error) {
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

func (a *instanceStoreAdapter) SaveInstance(ctx context.Context, row instancesave.InstanceRow) error {
	return a.repo.SaveInstance(ctx, db.InstanceRow{
		InstanceID: row.InstanceID,
		MapID:      row.MapID,
		Difficulty: uint8(row.Difficulty),
		ResetTime:  row.ResetTime,
		CanReset:   row.CanReset,
	})
}

func (a *instanceStoreAdapter) DeleteInstance(ctx context.Context, instanceID uint32) error {
	return a.repo.DeleteInstance(ctx, instanceID)
}

func (a *instanceStoreAdapter) DeleteExpiredInstances(ctx context.Context, before int64) (int64, error) {
	return a.repo.DeleteExpiredInstances(ctx, before)
}

func (a *instanceStoreAdapter) PackInstances(ctx context.Context) (int, error) {
	return a.repo.PackInstances(ctx)
}

func (a *instanceStoreAdapter) LoadResetTimes(ctx context.Context) ([]instancesave.ResetTimeRow, error) {
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

func (a *instanceStoreAdapter) SaveResetTime(ctx context.Context, row instancesave.ResetTimeRow) error {
	return a.repo.SaveResetTime(ctx, db.ResetTimeRow{
		MapID:      row.MapID,
		Difficulty: uint8(row.Difficulty),
		ResetTime:  row.ResetTime,
	})
}

func (a *instanceStoreAdapter) DeleteResetTime(ctx context.Context, mapID uint32, difficulty model.Difficulty) error {
	return a.repo.DeleteResetTime(ctx, mapID, uint8(difficulty))
}
