package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tripdash/internal/api/telematics"
	"github.com/langchou/tripdash/internal/cache"
	"github.com/langchou/tripdash/internal/clock"
	"github.com/langchou/tripdash/internal/format"
	"github.com/langchou/tripdash/internal/models"
)

type fakeSource struct {
	mu       sync.Mutex
	trips    []models.Trip
	vehicles []models.Vehicle
	err      error

	tripCalls    int
	vehicleCalls int
	getCalls     int
	tagCalls     int
	lastTag      string
}

func (f *fakeSource) FetchAllTrips(context.Context, string) ([]models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tripCalls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Trip(nil), f.trips...), nil
}

func (f *fakeSource) FetchVehicles(context.Context, string) ([]models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicleCalls++
	return f.vehicles, nil
}

func (f *fakeSource) GetTrip(_ context.Context, _, id string) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	for _, t := range f.trips {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, telematics.ErrNotFound
}

func (f *fakeSource) TagTrip(_ context.Context, _, _, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls++
	f.lastTag = tag
	return f.err
}

func (f *fakeSource) UntagTrip(_ context.Context, _, _, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls++
	f.lastTag = tag
	return f.err
}

func (f *fakeSource) calls() (trips, vehicles, get, tag int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripCalls, f.vehicleCalls, f.getCalls, f.tagCalls
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		trips: []models.Trip{
			trip("T1", -2*time.Hour, "C_1"),
			trip("T2", 0, "C_1"),
			trip("T3", -time.Hour, "C_2"),
		},
		vehicles: []models.Vehicle{
			{ID: "C_1", Make: "Honda", Model: "Fit"},
		},
	}
}

func newTestService(src TripSource) (*TripService, *clock.Mock, *cache.Cache) {
	clk := clock.NewMock(baseTime)
	c := cache.New(cache.NewMemoryStore(), time.Hour, nil, nil)
	return NewTripService(src, clk, nil), clk, c
}

func formattedIDs(trips []format.FormattedTrip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}

func TestMergedTrips(t *testing.T) {
	src := newFakeSource()
	svc, _, _ := newTestService(src)

	trips, err := svc.MergedTrips(context.Background(), "token", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T3", "T1"}, ids(trips))
	assert.Equal(t, "Honda", trips[0].Vehicle.Make)
	assert.True(t, trips[1].Vehicle.IsZero())

	filtered, err := svc.MergedTrips(context.Background(), "token", ParseTripIDs("T1,T3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T1"}, ids(filtered))
}

func TestMergedTrips_PropagatesUpstreamError(t *testing.T) {
	src := newFakeSource()
	src.err = &telematics.RequestError{Op: "fetch trip page 2", StatusCode: 500}
	svc, _, _ := newTestService(src)

	_, err := svc.MergedTrips(context.Background(), "token", nil)
	require.Error(t, err)

	var reqErr *telematics.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 500, reqErr.StatusCode)
}

func TestDashboardTrips_ServesFreshCache(t *testing.T) {
	src := newFakeSource()
	svc, clk, c := newTestService(src)
	ctx := context.Background()

	first, err := svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T3", "T1"}, formattedIDs(first))
	tripCalls, _, _, _ := src.calls()
	assert.Equal(t, 1, tripCalls)

	clk.Advance(59 * time.Minute)
	second, err := svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)
	assert.Equal(t, formattedIDs(first), formattedIDs(second))
	assert.Equal(t, first[0].Display.Title, second[0].Display.Title)
	tripCalls, _, _, _ = src.calls()
	assert.Equal(t, 1, tripCalls, "fresh cache must not hit upstream")

	clk.Advance(2 * time.Minute)
	_, err = svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)
	tripCalls, _, _, _ = src.calls()
	assert.Equal(t, 2, tripCalls, "stale cache must refetch")
}

func TestDashboardTrips_ErrorLeavesCacheEmpty(t *testing.T) {
	src := newFakeSource()
	src.err = telematics.ErrUnauthorized
	svc, _, c := newTestService(src)

	_, err := svc.DashboardTrips(context.Background(), "token", c)
	assert.ErrorIs(t, err, telematics.ErrUnauthorized)
	assert.Equal(t, cache.StateEmpty, c.State(context.Background(), baseTime))
}

func TestDashboardTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("from cache", func(t *testing.T) {
		src := newFakeSource()
		svc, _, c := newTestService(src)

		_, err := svc.DashboardTrips(ctx, "token", c)
		require.NoError(t, err)

		trip, err := svc.DashboardTrip(ctx, "token", c, "T1")
		require.NoError(t, err)
		assert.Equal(t, "T1", trip.ID)
		assert.Equal(t, "Honda", trip.Vehicle.Make)
		_, _, getCalls, _ := src.calls()
		assert.Zero(t, getCalls)
	})

	t.Run("from upstream", func(t *testing.T) {
		src := newFakeSource()
		svc, _, c := newTestService(src)

		trip, err := svc.DashboardTrip(ctx, "token", c, "T2")
		require.NoError(t, err)
		assert.Equal(t, "T2", trip.ID)
		assert.Equal(t, "Fit", trip.Vehicle.Model)
		assert.NotEmpty(t, trip.Display.Title)
		_, _, getCalls, _ := src.calls()
		assert.Equal(t, 1, getCalls)
	})

	t.Run("not found", func(t *testing.T) {
		svc, _, c := newTestService(newFakeSource())

		_, err := svc.DashboardTrip(ctx, "token", c, "missing")
		assert.ErrorIs(t, err, telematics.ErrNotFound)
	})
}

func TestDashboardVehicles_CachesNonEmptyList(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vehicles, err := svc.DashboardVehicles(ctx, "token", c)
		require.NoError(t, err)
		assert.Len(t, vehicles, 1)
	}
	_, vehicleCalls, _, _ := src.calls()
	assert.Equal(t, 1, vehicleCalls)

	src.vehicles = nil
	empty, _, _ := newTestService(src)
	c2 := cache.New(cache.NewMemoryStore(), time.Hour, nil, nil)
	for i := 0; i < 2; i++ {
		vehicles, err := empty.DashboardVehicles(ctx, "token", c2)
		require.NoError(t, err)
		assert.Empty(t, vehicles)
	}
	_, vehicleCalls, _, _ = src.calls()
	assert.Equal(t, 3, vehicleCalls, "an empty list is never served from cache")
}

func TestTagTrip_ValidatesBeforeRemoteCall(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	err := svc.TagTrip(ctx, "token", c, "T1", "   ")
	assert.ErrorIs(t, err, ErrTagRequired)
	assert.True(t, IsValidation(err))

	err = svc.UntagTrip(ctx, "token", c, "", "business")
	assert.ErrorIs(t, err, ErrTripIDRequired)

	_, _, _, tagCalls := src.calls()
	assert.Zero(t, tagCalls)
}

func TestTagTrip_ClearsCache(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	_, err := svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)
	require.Equal(t, cache.StateFresh, c.State(ctx, baseTime))

	require.NoError(t, svc.TagTrip(ctx, "token", c, "T1", " business "))
	assert.Equal(t, "business", src.lastTag)
	assert.Equal(t, cache.StateEmpty, c.State(ctx, baseTime))

	_, err = svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)
	require.NoError(t, svc.UntagTrip(ctx, "token", c, "T1", "business"))
	assert.Equal(t, cache.StateEmpty, c.State(ctx, baseTime))
}

func TestTagTrip_UpstreamFailureKeepsCache(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	_, err := svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)

	src.mu.Lock()
	src.err = telematics.ErrRateLimited
	src.mu.Unlock()

	err = svc.TagTrip(ctx, "token", c, "T1", "business")
	assert.ErrorIs(t, err, telematics.ErrRateLimited)
	assert.Equal(t, cache.StateFresh, c.State(ctx, baseTime))
}

func TestRefresh_Refetches(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	_, err := svc.DashboardTrips(ctx, "token", c)
	require.NoError(t, err)

	src.mu.Lock()
	src.trips = append(src.trips, trip("T4", time.Hour, "C_1"))
	src.mu.Unlock()

	trips, err := svc.Refresh(ctx, "token", c)
	require.NoError(t, err)
	assert.Equal(t, []string{"T4", "T2", "T3", "T1"}, formattedIDs(trips))
	tripCalls, _, _, _ := src.calls()
	assert.Equal(t, 2, tripCalls)
}

func TestDashboard_TokenChangeRefetches(t *testing.T) {
	src := newFakeSource()
	svc, _, c := newTestService(src)
	ctx := context.Background()

	_, err := svc.DashboardTrips(ctx, "token-a", c)
	require.NoError(t, err)
	_, err = svc.DashboardTrips(ctx, "token-a", c)
	require.NoError(t, err)
	tripCalls, _, _, _ := src.calls()
	require.Equal(t, 1, tripCalls)

	_, err = svc.DashboardTrips(ctx, "token-b", c)
	require.NoError(t, err)
	tripCalls, _, _, _ = src.calls()
	assert.Equal(t, 2, tripCalls, "another token must not be served the cached trips")

	_, vehicleCalls, _, _ := src.calls()
	_, err = svc.DashboardVehicles(ctx, "token-b", c)
	require.NoError(t, err)
	_, after, _, _ := src.calls()
	assert.Equal(t, vehicleCalls, after, "token-b vehicles come from its own cache entry")

	_, err = svc.DashboardTrip(ctx, "token-a", c, "T1")
	require.NoError(t, err)
	_, _, getCalls, _ := src.calls()
	assert.Equal(t, 1, getCalls, "cached record belongs to token-b")
}
