package integration

import (
	"time"

	"github.com/velmor/realmgo/internal/db"
)

func (s *IntegrationSuite) TestSaveAndLoadInstance() {
	row := db.InstanceRow{
		InstanceID: 1,
		MapID:      33,
		Difficulty: 0,
		ResetTime:  time.Now().Add(time.Hour).Unix(),
		CanReset:   true,
	}
	s.Require().NoError(s.repo.SaveInstance(s.ctx, row))

	loaded, err := s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal(row, loaded[0])

	// upsert updates in place
	row.CanReset = false
	row.ResetTime += 3600
	s.Require().NoError(s.repo.SaveInstance(s.ctx, row))

	loaded, err = s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal(row, loaded[0])
}

func (s *IntegrationSuite) TestDeleteInstanceCascadesBinds() {
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 7, MapID: 33, ResetTime: time.Now().Unix(), CanReset: true,
	}))
	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 7, Permanent: false,
	}))
	s.Require().NoError(s.repo.SaveGroupBind(s.ctx, db.GroupBindRow{
		GroupID: 200, InstanceID: 7, Permanent: true,
	}))

	s.Require().NoError(s.repo.DeleteInstance(s.ctx, 7))

	binds, err := s.repo.LoadCharacterBinds(s.ctx, 100)
	s.Require().NoError(err)
	s.Empty(binds, "character binds should cascade on instance delete")

	n, err := s.repo.CountBoundCharacters(s.ctx, 7)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *IntegrationSuite) TestDeleteExpiredInstances() {
	now := time.Now()

	// expired and unbound: deleted
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 1, MapID: 33, ResetTime: now.Add(-time.Hour).Unix(), CanReset: true,
	}))
	// expired but a character is still bound: kept
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 2, MapID: 33, ResetTime: now.Add(-time.Hour).Unix(), CanReset: true,
	}))
	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 2, Permanent: true,
	}))
	// not yet expired: kept
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 3, MapID: 33, ResetTime: now.Add(time.Hour).Unix(), CanReset: true,
	}))

	deleted, err := s.repo.DeleteExpiredInstances(s.ctx, now.Unix())
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	loaded, err := s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	s.Equal(uint32(2), loaded[0].InstanceID)
	s.Equal(uint32(3), loaded[1].InstanceID)
}

func (s *IntegrationSuite) TestPackInstances() {
	now := time.Now().Add(time.Hour).Unix()
	for _, id := range []uint32{4, 9, 17} {
		s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
			InstanceID: id, MapID: 33, ResetTime: now, CanReset: true,
		}))
	}
	// bind rows must follow the renumbering
	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 17, Permanent: false,
	}))

	renumbered, err := s.repo.PackInstances(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, renumbered)

	loaded, err := s.repo.LoadAllInstances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 3)
	for i, row := range loaded {
		s.Equal(uint32(i+1), row.InstanceID)
	}

	binds, err := s.repo.LoadCharacterBinds(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(binds, 1)
	s.Equal(uint32(3), binds[0].InstanceID, "bind should follow its instance to the new id")

	// already packed: nothing to do
	renumbered, err = s.repo.PackInstances(s.ctx)
	s.Require().NoError(err)
	s.Zero(renumbered)
}

func (s *IntegrationSuite) TestResetTimes() {
	row := db.ResetTimeRow{MapID: 531, Difficulty: 2, ResetTime: time.Now().Add(24 * time.Hour).Unix()}
	s.Require().NoError(s.repo.SaveResetTime(s.ctx, row))

	// upsert on the (map, difficulty) key
	row.ResetTime += 3600
	s.Require().NoError(s.repo.SaveResetTime(s.ctx, row))

	loaded, err := s.repo.LoadResetTimes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal(row, loaded[0])

	s.Require().NoError(s.repo.DeleteResetTime(s.ctx, 531, 2))

	loaded, err = s.repo.LoadResetTimes(s.ctx)
	s.Require().NoError(err)
	s.Empty(loaded)
}

func (s *IntegrationSuite) TestCharacterBinds() {
	now := time.Now().Add(time.Hour).Unix()
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 1, MapID: 33, ResetTime: now, CanReset: true,
	}))
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 2, MapID: 289, ResetTime: now, CanReset: true,
	}))

	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 1, Permanent: false,
	}))
	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 2, Permanent: false,
	}))

	// flipping a bind permanent must not create a second row
	s.Require().NoError(s.repo.SaveCharacterBind(s.ctx, db.CharacterBindRow{
		CharacterID: 100, InstanceID: 1, Permanent: true,
	}))

	binds, err := s.repo.LoadCharacterBinds(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(binds, 2)

	byInstance := make(map[uint32]db.CharacterBindRow, len(binds))
	for _, b := range binds {
		byInstance[b.InstanceID] = b
	}
	s.True(byInstance[1].Permanent)
	s.False(byInstance[2].Permanent)

	s.Require().NoError(s.repo.DeleteCharacterBind(s.ctx, 100, 1))

	binds, err = s.repo.LoadCharacterBinds(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(binds, 1)
	s.Equal(uint32(2), binds[0].InstanceID)
}

func (s *IntegrationSuite) TestGroupBinds() {
	now := time.Now().Add(time.Hour).Unix()
	s.Require().NoError(s.repo.SaveInstance(s.ctx, db.InstanceRow{
		InstanceID: 5, MapID: 531, Difficulty: 2, ResetTime: now, CanReset: false,
	}))
	s.Require().NoError(s.repo.SaveGroupBind(s.ctx, db.GroupBindRow{
		GroupID: 42, InstanceID: 5, Permanent: true,
	}))

	n, err := s.repo.CountBoundCharacters(s.ctx, 5)
	s.Require().NoError(err)
	s.Zero(n, "group binds must not count as character binds")

	s.Require().NoError(s.repo.DeleteGroupBind(s.ctx, 42, 5))
	s.Require().NoError(s.repo.DeleteGroupBind(s.ctx, 42, 5)) // idempotent
}
