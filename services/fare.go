package services

import (
	"math"

	"github.com/shopspring/decimal"

	"ridehail/backend/models"
)

const earthRadiusKm = 6371.0

// farePlan is one row of the static fare table.
type farePlan struct {
	BasePrice  decimal.Decimal
	PricePerKm decimal.Decimal
}

var fareTable = map[models.RideType]farePlan{
	models.RideTypeBike:        {BasePrice: decimal.NewFromInt(1000), PricePerKm: decimal.NewFromInt(100)},
	models.RideTypeFourSeater:  {BasePrice: decimal.NewFromInt(3000), PricePerKm: decimal.NewFromInt(250)},
	models.RideTypeSevenSeater: {BasePrice: decimal.NewFromInt(4500), PricePerKm: decimal.NewFromInt(350)},
}

// DistanceKm returns the great-circle distance between two points using the
// haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// EstimateFare prices a trip as base + perKm * distance, rounded to 2 decimals.
func EstimateFare(rideType models.RideType, distanceKm float64) (decimal.Decimal, error) {
	plan, ok := fareTable[rideType]
	if !ok {
		return decimal.Zero, ValidationError("unknown ride type: "+string(rideType), nil)
	}
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return decimal.Zero, ValidationError("distance must be a non-negative number", nil)
	}
	km := decimal.NewFromFloat(distanceKm)
	return plan.BasePrice.Add(plan.PricePerKm.Mul(km)).Round(2), nil
}
