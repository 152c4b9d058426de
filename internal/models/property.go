package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/generally23/hlguinee/internal/apperr"
)

// PropertyType discriminates the Property variant model: a house carries a
// HouseDetails document, land carries none.
type PropertyType string

const (
	TypeHouse PropertyType = "house"
	TypeLand  PropertyType = "land"
)

// Purpose is what the owner wants to do with the property. Land can only be
// sold, never rented.
type Purpose string

const (
	PurposeRent Purpose = "rent"
	PurposeSell Purpose = "sell"
)

// Status is the listing lifecycle state.
type Status string

const (
	StatusUnlisted Status = "unlisted"
	StatusListed   Status = "listed"
	StatusPending  Status = "pending"
	StatusSold     Status = "sold"
	StatusRented   Status = "rented"
)

// Price bounds per purpose, in Guinean francs.
const (
	MinRentPrice = 100_000
	MaxRentPrice = 10_000_000
	MinSellPrice = 10_000_000
	MaxSellPrice = 900_000_000_000
)

// MinYearBuilt bounds HouseDetails.YearBuilt from below; the upper bound is
// the current year.
const MinYearBuilt = 1800

// HouseDetails carries the fields that only exist for house properties.
// Modeled as a tagged variant: required when Type is house, rejected when
// Type is land.
type HouseDetails struct {
	AreaBuilt   float64 `bson:"areaBuilt" json:"areaBuilt"`
	Rooms       int     `bson:"rooms" json:"rooms"`
	Bathrooms   int     `bson:"bathrooms" json:"bathrooms"`
	Kitchens    int     `bson:"kitchens" json:"kitchens"`
	Garages     int     `bson:"garages" json:"garages"`
	DiningRooms int     `bson:"diningRooms" json:"diningRooms"`
	LivingRooms int     `bson:"livingRooms" json:"livingRooms"`
	Pools       int     `bson:"pools" json:"pools"`
	YearBuilt   int     `bson:"yearBuilt" json:"yearBuilt"`
	Fenced      bool    `bson:"fenced" json:"fenced"`
}

// Property is a real-estate listing document.
// OwnerID is set once at creation and is never client-settable afterwards.
// ImagesNames is maintained by the image pipeline only and is replaced by a
// presentation-ready "images" array in API responses, hence json:"-".
type Property struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID         primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Type            PropertyType       `bson:"type" json:"type"`
	Purpose         Purpose            `bson:"purpose" json:"purpose"`
	Price           float64            `bson:"price" json:"price"`
	Location        GeoPoint           `bson:"location" json:"location"`
	Address         string             `bson:"address" json:"address"`
	Area            float64            `bson:"area" json:"area"`
	AreaUnit        string             `bson:"areaUnit" json:"areaUnit"`
	House           *HouseDetails      `bson:"house,omitempty" json:"house,omitempty"`
	Status          Status             `bson:"status" json:"status"`
	StatusChangedAt time.Time          `bson:"statusChangedAt" json:"statusChangedAt"`
	ImagesNames     []ImageVariantSet  `bson:"imagesNames" json:"-"`
	Tags            []string           `bson:"tags" json:"tags"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the whole variant model once, at construction or after an
// update has been applied. It does not consult the geofence; that gate
// belongs to the creation flow.
func (p *Property) Validate() error {
	switch p.Type {
	case TypeHouse, TypeLand:
	default:
		return apperr.Validation("property type must be \"house\" or \"land\"")
	}

	switch p.Purpose {
	case PurposeRent, PurposeSell:
	default:
		return apperr.Validation("property purpose must be \"rent\" or \"sell\"")
	}
	if p.Type == TypeLand && p.Purpose == PurposeRent {
		return apperr.Validation("land cannot be offered for rent")
	}

	if err := p.validatePrice(); err != nil {
		return err
	}
	if err := p.Location.Validate(); err != nil {
		return err
	}
	if p.Area <= 0 {
		return apperr.Validation("area must be a positive number")
	}

	switch p.Type {
	case TypeHouse:
		if p.House == nil {
			return apperr.Validation("house details (rooms, bathrooms, ...) are required for a house")
		}
		if err := p.House.validate(); err != nil {
			return err
		}
	case TypeLand:
		if p.House != nil {
			return apperr.Validation("house fields such as rooms are not allowed for land")
		}
	}

	switch p.Status {
	case StatusUnlisted, StatusListed, StatusPending, StatusSold, StatusRented:
	default:
		return apperr.Validation("invalid property status %q", p.Status)
	}
	return nil
}

func (p *Property) validatePrice() error {
	switch p.Purpose {
	case PurposeRent:
		if p.Price < MinRentPrice || p.Price > MaxRentPrice {
			return apperr.Validation("rent price must be between %d and %d", MinRentPrice, MaxRentPrice)
		}
	case PurposeSell:
		if p.Price < MinSellPrice || p.Price > MaxSellPrice {
			return apperr.Validation("sale price must be between %d and %d", MinSellPrice, MaxSellPrice)
		}
	}
	return nil
}

func (h *HouseDetails) validate() error {
	if h.Rooms < 0 || h.Bathrooms < 0 || h.Kitchens < 0 || h.Garages < 0 ||
		h.DiningRooms < 0 || h.LivingRooms < 0 || h.Pools < 0 {
		return apperr.Validation("house room counts cannot be negative")
	}
	if h.AreaBuilt < 0 {
		return apperr.Validation("areaBuilt cannot be negative")
	}
	currentYear := time.Now().Year()
	if h.YearBuilt < MinYearBuilt || h.YearBuilt > currentYear {
		return apperr.Validation("yearBuilt must be between %d and %d", MinYearBuilt, currentYear)
	}
	return nil
}

// ImageCount returns the number of stored variant sets, i.e. uploaded photos.
func (p *Property) ImageCount() int {
	return len(p.ImagesNames)
}

// AllImageKeys flattens every blob key across every variant set. Deletion
// cascades over this list.
func (p *Property) AllImageKeys() []string {
	var keys []string
	for _, set := range p.ImagesNames {
		keys = append(keys, set.AllNames()...)
	}
	return keys
}
