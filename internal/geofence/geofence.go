package geofence

import (
	_ "embed"
	"math"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/generally23/hlguinee/internal/apperr"
)

// Embedded simplified national boundary, used unless a dataset path is
// configured. Static reference data: cached process-wide, no invalidation.
//
//go:embed data/guinea.geojson
var defaultBoundary []byte

// Validator answers point-in-polygon queries against the Guinea reference
// geometry. The dataset is parsed once on first use.
type Validator struct {
	path string

	once    sync.Once
	fc      *geojson.FeatureCollection
	loadErr error
}

// New returns a Validator backed by the GeoJSON file at path, or by the
// embedded boundary when path is empty.
func New(path string) *Validator {
	return &Validator{path: path}
}

func (v *Validator) load() {
	data := defaultBoundary
	if v.path != "" {
		b, err := os.ReadFile(v.path)
		if err != nil {
			v.loadErr = apperr.Infrastructure(err, "failed to read geofence dataset %s", v.path)
			return
		}
		data = b
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		v.loadErr = apperr.Infrastructure(err, "failed to parse geofence dataset")
		return
	}
	v.fc = fc
}

// Contains reports whether the [lng, lat] pair lies inside the reference
// boundary. Anything other than a 2-element pair of finite numbers is
// outside by definition and never consults the dataset. A dataset load
// failure is returned as an infrastructure error, never as a false
// "outside" result.
func (v *Validator) Contains(coordinates []float64) (bool, error) {
	if len(coordinates) != 2 {
		return false, nil
	}
	for _, c := range coordinates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false, nil
		}
	}

	v.once.Do(v.load)
	if v.loadErr != nil {
		return false, v.loadErr
	}

	point := orb.Point{coordinates[0], coordinates[1]}
	for _, feature := range v.fc.Features {
		switch geom := feature.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(geom, point) {
				return true, nil
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(geom, point) {
				return true, nil
			}
		}
	}
	return false, nil
}
