package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/rotation/domain"
	"github.com/smallbiznis/leadbridge/internal/rotation/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.CampaignRotationState{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: config.Config{Rotation: config.RotationConfig{LockTTL: time.Second}},
		Clock:  clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		GenID:  node,
		Repo:   repository.Provide(),
		Mutex:  cache.NewKeyedMutex(),
	})
	return svc, db
}

func TestSelectNextRoundRobin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ids := []string{"A", "B", "C"}

	var picked []string
	for i := 0; i < 4; i++ {
		id, state, err := svc.SelectNext(ctx, ids, "10_abc")
		require.NoError(t, err)
		require.NotNil(t, state)
		picked = append(picked, id)
	}
	assert.Equal(t, []string{"A", "B", "C", "A"}, picked)

	state, err := svc.Get(ctx, "10_abc")
	require.NoError(t, err)
	assert.Equal(t, "rotation_10_abc", state.FormKey)
	assert.Equal(t, 0, state.LastUsedIndex)
	assert.Equal(t, "A", state.LastUsedID)
	assert.EqualValues(t, 4, state.TotalLeadsRouted)
}

func TestSelectNextSingleCampaignSkipsState(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	id, state, err := svc.SelectNext(ctx, []string{" 7 "}, "10_abc")
	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.Nil(t, state)

	var count int64
	require.NoError(t, db.Model(&domain.CampaignRotationState{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSelectNextEmptyList(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.SelectNext(context.Background(), []string{"", "  "}, "10_abc")
	assert.ErrorIs(t, err, domain.ErrNoCampaigns)
}

func TestSelectNextResetsWhenListChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.SelectNext(ctx, []string{"A", "B"}, "form")
	require.NoError(t, err)
	_, _, err = svc.SelectNext(ctx, []string{"A", "B"}, "form")
	require.NoError(t, err)

	id, state, err := svc.SelectNext(ctx, []string{"X", "Y", "Z"}, "form")
	require.NoError(t, err)
	assert.Equal(t, "X", id)
	assert.EqualValues(t, 1, state.TotalLeadsRouted)
	assert.Equal(t, []string{"X", "Y", "Z"}, []string(state.CampaignIDs))

	id, _, err = svc.SelectNext(ctx, []string{"Y", "X", "Z"}, "form")
	require.NoError(t, err)
	assert.Equal(t, "Y", id, "reordering counts as a change")
}

func TestSelectNextFormsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ids := []string{"A", "B"}

	first, _, err := svc.SelectNext(ctx, ids, "one")
	require.NoError(t, err)
	other, _, err := svc.SelectNext(ctx, ids, "two")
	require.NoError(t, err)
	assert.Equal(t, "A", first)
	assert.Equal(t, "A", other)
}

func TestSelectNextConcurrentCallersGetDistinctSlots(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ids := []string{"A", "B", "C"}

	const calls = 30
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := svc.SelectNext(ctx, ids, "busy")
			assert.NoError(t, err)
			mu.Lock()
			counts[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"A": 10, "B": 10, "C": 10}, counts)
	state, err := svc.Get(ctx, "busy")
	require.NoError(t, err)
	assert.EqualValues(t, calls, state.TotalLeadsRouted)
}

func TestResetAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Reset(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Reset(ctx, " "), domain.ErrInvalidFormID)

	ids := []string{"A", "B"}
	_, _, err = svc.SelectNext(ctx, ids, "form")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "form"))

	id, _, err := svc.SelectNext(ctx, ids, "form")
	require.NoError(t, err)
	assert.Equal(t, "A", id)
}
