package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/generally23/hlguinee/internal/apperr"
)

func validHouse() *Property {
	return &Property{
		Type:    TypeHouse,
		Purpose: PurposeRent,
		Price:   500_000,
		Location: GeoPoint{
			Type:        "Point",
			Coordinates: []float64{-13.65, 9.55},
		},
		Address:  "Kipe, Conakry",
		Area:     240,
		AreaUnit: "m2",
		House: &HouseDetails{
			Rooms:     4,
			Bathrooms: 2,
			Kitchens:  1,
			YearBuilt: 2015,
		},
		Status: StatusUnlisted,
	}
}

func validLand() *Property {
	return &Property{
		Type:    TypeLand,
		Purpose: PurposeSell,
		Price:   50_000_000,
		Location: GeoPoint{
			Type:        "Point",
			Coordinates: []float64{-9.3, 10.4},
		},
		Address:  "Kankan",
		Area:     1200,
		AreaUnit: "m2",
		Status:   StatusUnlisted,
	}
}

func TestValidateHouse(t *testing.T) {
	require.NoError(t, validHouse().Validate())
}

func TestValidateLand(t *testing.T) {
	require.NoError(t, validLand().Validate())
}

func TestLandRejectsHouseFields(t *testing.T) {
	p := validLand()
	p.House = &HouseDetails{Rooms: 5}

	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "rooms")
}

func TestHouseRequiresDetails(t *testing.T) {
	p := validHouse()
	p.House = nil
	require.Error(t, p.Validate())
}

func TestLandCannotBeRented(t *testing.T) {
	p := validLand()
	p.Purpose = PurposeRent
	p.Price = 500_000

	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPriceRanges(t *testing.T) {
	p := validHouse()
	p.Price = 50_000 // below rent minimum
	require.Error(t, p.Validate())

	p.Price = MinRentPrice
	require.NoError(t, p.Validate())

	l := validLand()
	l.Price = 5_000_000 // below sell minimum
	require.Error(t, l.Validate())

	l.Price = MaxSellPrice
	require.NoError(t, l.Validate())
}

func TestLocationShape(t *testing.T) {
	p := validHouse()
	p.Location.Coordinates = []float64{-13.65}
	require.Error(t, p.Validate())

	p.Location.Coordinates = []float64{-13.65, 9.55, 12}
	require.Error(t, p.Validate())

	p.Location.Coordinates = nil
	require.Error(t, p.Validate())

	p.Location = GeoPoint{Type: "Polygon", Coordinates: []float64{-13.65, 9.55}}
	require.Error(t, p.Validate())
}

func TestYearBuiltBounds(t *testing.T) {
	p := validHouse()
	p.House.YearBuilt = 1799
	require.Error(t, p.Validate())

	p.House.YearBuilt = time.Now().Year() + 1
	require.Error(t, p.Validate())

	p.House.YearBuilt = MinYearBuilt
	require.NoError(t, p.Validate())
}

func TestAllImageKeys(t *testing.T) {
	p := validHouse()
	p.ImagesNames = []ImageVariantSet{
		{SourceName: "a-4000", Names: []string{"a-500", "a-800"}},
		{SourceName: "b-2560", Names: []string{"b-500", "b-800"}},
	}
	keys := p.AllImageKeys()
	assert.ElementsMatch(t,
		[]string{"a-4000", "a-500", "a-800", "b-2560", "b-500", "b-800"}, keys)
	assert.Equal(t, 2, p.ImageCount())
}
