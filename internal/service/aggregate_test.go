package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tripdash/internal/models"
)

var baseTime = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func trip(id string, offset time.Duration, vehicle string) models.Trip {
	return models.Trip{ID: id, StartedAt: baseTime.Add(offset), EndedAt: baseTime.Add(offset + 20*time.Minute), VehicleRef: vehicle}
}

func ids(trips []models.MergedTrip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}

func TestParseTripIDs(t *testing.T) {
	assert.Nil(t, ParseTripIDs(""))
	assert.Nil(t, ParseTripIDs("  "))
	assert.Nil(t, ParseTripIDs(" , ,"))

	f := ParseTripIDs("a, b,,c")
	require.Len(t, f, 3)
	assert.True(t, f.Contains("a"))
	assert.True(t, f.Contains("b"))
	assert.True(t, f.Contains("c"))
	assert.False(t, f.Contains("d"))
}

func TestAggregate_SortsMostRecentFirst(t *testing.T) {
	trips := []models.Trip{
		trip("old", -48*time.Hour, ""),
		trip("new", 0, ""),
		trip("mid", -24*time.Hour, ""),
	}

	got := Aggregate(trips, nil, nil)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(got))
}

func TestAggregate_StableForEqualTimestamps(t *testing.T) {
	trips := []models.Trip{
		trip("a", 0, ""),
		trip("b", time.Hour, ""),
		trip("c", 0, ""),
		trip("d", 0, ""),
	}

	first := Aggregate(trips, nil, nil)
	second := Aggregate(trips, nil, nil)

	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(first))
	assert.Equal(t, first, second)
}

func TestAggregate_ResolvesVehicles(t *testing.T) {
	vehicles := []models.Vehicle{
		{ID: "C_1", URL: "https://api.example.com/vehicle/C_1/", Make: "Honda"},
		{ID: "C_2", Make: "Mazda"},
	}
	trips := []models.Trip{
		trip("by-id", 0, "C_2"),
		trip("by-url", -time.Hour, "https://api.example.com/vehicle/C_1/"),
		trip("unknown", -2*time.Hour, "C_404"),
		trip("none", -3*time.Hour, ""),
	}

	got := Aggregate(trips, vehicles, nil)
	require.Len(t, got, 4)
	assert.Equal(t, "Mazda", got[0].Vehicle.Make)
	assert.Equal(t, "Honda", got[1].Vehicle.Make)
	assert.True(t, got[2].Vehicle.IsZero())
	assert.True(t, got[3].Vehicle.IsZero())
}

func TestAggregate_Filter(t *testing.T) {
	t1 := trip("T1", -2*time.Hour, "")
	t2 := trip("T2", -time.Hour, "")
	t3 := trip("T3", 0, "")

	got := Aggregate([]models.Trip{t1, t2, t3}, nil, TripFilter{"T1": {}, "T3": {}})
	assert.Equal(t, []string{"T3", "T1"}, ids(got))
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	trips := []models.Trip{trip("a", -time.Hour, ""), trip("b", 0, "")}
	vehicles := []models.Vehicle{{ID: "C_1"}}

	_ = Aggregate(trips, vehicles, nil)

	assert.Equal(t, "a", trips[0].ID)
	assert.Equal(t, "b", trips[1].ID)
	assert.Equal(t, "C_1", vehicles[0].ID)
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
