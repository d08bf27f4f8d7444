package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/backend/models"
)

func TestEstimateFare_Table(t *testing.T) {
	cases := []struct {
		rideType models.RideType
		km       float64
		want     string
	}{
		{models.RideTypeFourSeater, 10, "5500"},
		{models.RideTypeBike, 0, "1000"},
		{models.RideTypeBike, 2.5, "1250"},
		{models.RideTypeSevenSeater, 1, "4850"},
		{models.RideTypeFourSeater, 1.234, "3308.5"},
	}
	for _, tc := range cases {
		got, err := EstimateFare(tc.rideType, tc.km)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "%s %.3f km: got %s", tc.rideType, tc.km, got)
	}
}

func TestEstimateFare_RoundsToTwoDecimals(t *testing.T) {
	got, err := EstimateFare(models.RideTypeBike, 1.23456)
	require.NoError(t, err)
	assert.Equal(t, "1123.46", got.StringFixed(2))
	assert.True(t, got.Equal(got.Round(2)))
}

func TestEstimateFare_MonotoneInDistance(t *testing.T) {
	for rideType := range fareTable {
		prev := decimal.Zero
		for km := 0.0; km <= 50; km += 0.7 {
			fare, err := EstimateFare(rideType, km)
			require.NoError(t, err)
			assert.True(t, fare.GreaterThanOrEqual(prev), "%s fare dropped at %.1f km", rideType, km)
			prev = fare
		}
	}
}

func TestEstimateFare_UnknownRideType(t *testing.T) {
	_, err := EstimateFare(models.RideType("HELICOPTER"), 5)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = EstimateFare(models.RideTypeBike, -1)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestDistanceKm(t *testing.T) {
	// Ikeja to Victoria Island, roughly 21 km as the crow flies.
	d := DistanceKm(6.6018, 3.3515, 6.4281, 3.4219)
	assert.InDelta(t, 20.8, d, 0.5)

	assert.Zero(t, DistanceKm(6.5, 3.3, 6.5, 3.3))
	assert.InDelta(t, DistanceKm(1, 2, 3, 4), DistanceKm(3, 4, 1, 2), 1e-9)
	assert.Greater(t, DistanceKm(0, 0, 0, 0.0001), 0.0)

	// One degree of longitude on the equator.
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 0, 1), 0.01)
}

func TestServiceError_IsMatchesSentinel(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrRideNotAvailable)
	assert.ErrorIs(t, wrapped, ErrRideNotAvailable)
	assert.NotErrorIs(t, ErrDriverBusy, ErrRideNotAvailable)
	assert.Equal(t, KindConflict, KindOf(&InsufficientFundsError{}))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
