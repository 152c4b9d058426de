package models

import (
	"math"

	"github.com/generally23/hlguinee/internal/apperr"
)

// GeoPoint is a GeoJSON Point as stored in MongoDB: [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// Validate checks the GeoJSON Point shape: type "Point" and exactly two
// finite coordinate values.
func (g *GeoPoint) Validate() error {
	if g == nil {
		return apperr.Validation("location is required")
	}
	if g.Type != "Point" {
		return apperr.Validation("location type must be \"Point\"")
	}
	if len(g.Coordinates) != 2 {
		return apperr.Validation("location coordinates must be exactly [longitude, latitude]")
	}
	for _, c := range g.Coordinates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return apperr.Validation("location coordinates must be finite numbers")
		}
	}
	return nil
}
