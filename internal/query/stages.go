package query

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/generally23/hlguinee/internal/models"
)

// RecentlyClosedWindow is the hard-coded recency window during which sold or
// rented properties remain visible in search results.
const RecentlyClosedWindow = 7 * 24 * time.Hour

// FilterableFields is the allow-list of property fields clients may filter
// on. Anything else in the query string is ignored.
var FilterableFields = []string{
	"type", "purpose", "price", "area",
	"areaBuilt", "yearBuilt", "fenced",
	"bathrooms", "garages", "kitchens",
	"livingRooms", "diningRooms", "pools", "rooms",
}

// houseFields are stored under the house sub-document of the variant model.
var houseFields = map[string]bool{
	"areaBuilt": true, "yearBuilt": true, "fenced": true,
	"bathrooms": true, "garages": true, "kitchens": true,
	"livingRooms": true, "diningRooms": true, "pools": true, "rooms": true,
}

// storedPath maps a client-facing filter/sort field to its document path.
func storedPath(field string) string {
	if houseFields[field] {
		return "house." + field
	}
	return field
}

// rangeOps are the key-suffix tokens rewritten to the store's native range
// operators.
var rangeOps = map[string]string{
	"gte": "$gte",
	"lte": "$lte",
}

// SearchStage builds the geo-containment stage for a viewport box. Both
// corners must be well-formed 2-element coordinate pairs, otherwise no stage
// is produced and the pipeline simply omits spatial scoping.
func SearchStage(northEast, southWest []float64) bson.D {
	if !validCorner(northEast) || !validCorner(southWest) {
		return nil
	}
	return bson.D{{Key: "$match", Value: bson.M{
		"location": bson.M{
			"$geoWithin": bson.M{
				// $box is [bottom-left, top-right]
				"$box": bson.A{southWest, northEast},
			},
		},
	}}}
}

func validCorner(c []float64) bool {
	if len(c) != 2 {
		return false
	}
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FilterStage copies allow-listed query values into a match predicate and
// composes them with the default visibility rule: listed/pending documents
// are always eligible, sold/rented ones only while their status change falls
// inside RecentlyClosedWindow. The visibility rule applies even when the
// caller supplies no filters at all, so this builder never returns nil.
//
// Values may be scalars or maps carrying gte/lte bounds; bound tokens are
// rewritten to $gte/$lte and numeric-looking strings are coerced so range
// comparisons work on stored numbers.
func FilterStage(params map[string]interface{}, now time.Time) bson.D {
	match := bson.M{}
	for _, field := range FilterableFields {
		raw, ok := params[field]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case map[string]string:
			bounds := bson.M{}
			for op, val := range v {
				if mongoOp, ok := rangeOps[op]; ok {
					bounds[mongoOp] = coerce(val)
				}
			}
			if len(bounds) > 0 {
				match[storedPath(field)] = bounds
			}
		case string:
			match[storedPath(field)] = coerce(v)
		default:
			match[storedPath(field)] = v
		}
	}

	visibility := bson.M{"$or": bson.A{
		bson.M{"status": bson.M{"$in": bson.A{models.StatusListed, models.StatusPending}}},
		bson.M{
			"status":          bson.M{"$in": bson.A{models.StatusSold, models.StatusRented}},
			"statusChangedAt": bson.M{"$gte": now.Add(-RecentlyClosedWindow)},
		},
	}}

	if len(match) == 0 {
		return bson.D{{Key: "$match", Value: visibility}}
	}
	return bson.D{{Key: "$match", Value: bson.M{"$and": bson.A{match, visibility}}}}
}

// coerce converts a query string value to the most specific type it parses
// as, so predicates compare against stored numbers and booleans instead of
// their string spellings.
func coerce(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// SortStage builds the ordering stage. A "-" prefix means descending; the
// document identity is always appended as a secondary descending tie-break
// so pages are reproducible when primary keys collide. Empty input yields no
// stage and no ordering guarantee.
func SortStage(sortKey string) bson.D {
	if sortKey == "" {
		return nil
	}
	field := sortKey
	dir := 1
	if strings.HasPrefix(sortKey, "-") {
		field = strings.TrimPrefix(sortKey, "-")
		dir = -1
	}
	if field == "" {
		return nil
	}
	return bson.D{{Key: "$sort", Value: bson.D{
		{Key: storedPath(field), Value: dir},
		{Key: "_id", Value: -1},
	}}}
}

// OwnerLookupStages resolves ownerId into an embedded owner object, collapses
// the zero-or-one join array and strips credentials. Appended only to the
// data pass; the count pass does not need the join.
func OwnerLookupStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.M{
			"from":         "accounts",
			"localField":   "ownerId",
			"foreignField": "_id",
			"as":           "owner",
		}}},
		{{Key: "$unwind", Value: bson.M{
			"path":                       "$owner",
			"preserveNullAndEmptyArrays": true,
		}}},
		{{Key: "$project", Value: bson.M{"owner.password": 0}}},
	}
}
