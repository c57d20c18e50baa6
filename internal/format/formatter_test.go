package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tripdash/internal/models"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func sampleTrip() models.MergedTrip {
	return models.MergedTrip{
		Trip: models.Trip{
			ID: "T_1",
			// 17:30 UTC = 09:30 PST，20:45 UTC = 15:45 EST
			StartedAt:     time.Date(2024, 3, 8, 17, 30, 0, 0, time.UTC),
			EndedAt:       time.Date(2024, 3, 8, 20, 45, 0, 0, time.UTC),
			StartTimezone: "America/Los_Angeles",
			EndTimezone:   "America/New_York",
			StartAddress:  &models.Address{Name: "1 Market St, San Francisco, CA 94105, USA"},
			EndAddress:    &models.Address{Name: "350 5th Ave, New York, NY 10118, USA"},
			DistanceM:     16093.44,
			DurationS:     3900,
			FuelVolumeL:   floatPtr(3.785411784),
			FuelCostUSD:   floatPtr(3.5),
			AverageKMPL:   floatPtr(10),
		},
		Vehicle: models.Vehicle{ID: "C_1", Make: "Honda"},
	}
}

func TestFormatTrip_DatesUseOwnTimezones(t *testing.T) {
	ft := FormatTrip(sampleTrip())

	assert.Equal(t, "Friday", ft.Display.DayOfWeek)
	assert.Equal(t, "9:30 AM", ft.Display.StartedAtTime)
	assert.Equal(t, "Mar 8, 2024", ft.Display.StartedAtDate)
	assert.Equal(t, "3:45 PM", ft.Display.EndedAtTime)
	assert.Equal(t, "Mar 8, 2024", ft.Display.EndedAtDate)
}

func TestFormatTrip_TitleAndAddresses(t *testing.T) {
	in := sampleTrip()
	ft := FormatTrip(in)

	assert.Equal(t, "Drive to 350 5th Ave, New York, NY on Mar 8, 2024", ft.Display.Title)
	assert.Equal(t, "1 Market St, San Francisco, CA", ft.Display.StartAddress)
	assert.Equal(t, "1 Market St, San Francisco, CA", ft.StartAddress.Cleaned)

	// 入参的地址没有被修改
	assert.Empty(t, in.StartAddress.Cleaned)
}

func TestFormatTrip_Conversions(t *testing.T) {
	ft := FormatTrip(sampleTrip())

	assert.Equal(t, "1h 5m", ft.Display.Duration)
	assert.Equal(t, "10.0 mi", ft.Display.Distance)
	assert.Equal(t, "23.5", ft.Display.AverageMPG)
	assert.Equal(t, "$3.50", ft.Display.FuelCost)
	assert.Equal(t, "1.00", ft.Display.FuelVolumeUSGal)
}

func TestFormatTrip_ZeroSubstitution(t *testing.T) {
	tests := []struct {
		name      string
		brakes    *int
		wantClass string
		wantValue string
	}{
		{name: "absent", brakes: nil, wantClass: ClassNoHardBrakes, wantValue: OK},
		{name: "zero", brakes: intPtr(0), wantClass: ClassNoHardBrakes, wantValue: OK},
		{name: "three", brakes: intPtr(3), wantClass: ClassSomeHardBrakes, wantValue: "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleTrip()
			in.HardBrakes = tt.brakes
			in.HardAccels = tt.brakes

			ft := FormatTrip(in)
			assert.Equal(t, tt.wantClass, ft.Display.HardBrakesClass)
			assert.Equal(t, tt.wantValue, ft.Display.HardBrakes)
			assert.Equal(t, tt.wantValue, ft.Display.HardAccels)
		})
	}
}

func TestFormatTrip_HardAccelClasses(t *testing.T) {
	in := sampleTrip()
	in.HardAccels = intPtr(2)
	ft := FormatTrip(in)
	assert.Equal(t, ClassSomeHardAccels, ft.Display.HardAccelsClass)
	assert.Equal(t, "2", ft.Display.HardAccels)

	in.HardAccels = nil
	ft = FormatTrip(in)
	assert.Equal(t, ClassNoHardAccels, ft.Display.HardAccelsClass)
}

func TestFormatTrip_Speeding(t *testing.T) {
	in := sampleTrip()

	ft := FormatTrip(in)
	assert.Equal(t, ClassNoSpeeding, ft.Display.SpeedingClass)
	assert.Equal(t, OK, ft.Display.Speeding)

	in.DurationOver70S = floatPtr(61)
	ft = FormatTrip(in)
	assert.Equal(t, ClassSomeSpeeding, ft.Display.SpeedingClass)
	assert.Equal(t, "2", ft.Display.Speeding)
}

func TestFormatTrip_MissingOptionalFields(t *testing.T) {
	ft := FormatTrip(models.MergedTrip{Trip: models.Trip{
		ID:            "bare",
		StartedAt:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		EndedAt:       time.Date(2024, 1, 1, 12, 10, 0, 0, time.UTC),
		StartTimezone: "Not/AZone",
	}})

	assert.Equal(t, "12:00 PM", ft.Display.StartedAtTime)
	assert.Equal(t, "Drive to  on Jan 1, 2024", ft.Display.Title)
	assert.Empty(t, ft.Display.AverageMPG)
	assert.Empty(t, ft.Display.FuelCost)
	assert.Empty(t, ft.Display.FuelVolumeUSGal)
	assert.Equal(t, "0m", ft.Display.Duration)
	assert.Equal(t, "0.0 mi", ft.Display.Distance)
	assert.True(t, ft.Vehicle.IsZero())
}

func TestFormatTrips_KeepsOrder(t *testing.T) {
	a, b := sampleTrip(), sampleTrip()
	a.ID, b.ID = "A", "B"

	out := FormatTrips([]models.MergedTrip{b, a})
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].ID)
	assert.Equal(t, "A", out[1].ID)
}

func TestCleanAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123 Main St, San Francisco, CA 94107, USA", "123 Main St, San Francisco, CA"},
		{"123 Main St, Portland, OR 97201-1234, United States", "123 Main St, Portland, OR"},
		{"Home, 94107", "Home"},
		{"Somewhere, France", "Somewhere, France"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanAddress(tt.in), tt.in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "12m", FormatDuration(720))
	assert.Equal(t, "1h 0m", FormatDuration(3600))
	assert.Equal(t, "2h 30m", FormatDuration(9000))
}
