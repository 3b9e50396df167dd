// Package filter implements metadata-based query predicates, faceting,
// and filter-fusion embedding augmentation over a category-id metadata
// model, plus the teacher's richer comparison/range/geo operators kept
// as additive extensions.
package filter

import (
	"math"
	"time"
)

// Metadata maps field name to category id for a single document. The
// primary predicate contract (Equals/And/Or) operates over this model;
// richer predicates below accept any interface{} value for compatibility
// with the teacher's original comparison operators.
type Metadata map[string]interface{}

// Predicate is the metadata-filter contract: Match reports whether a
// document's metadata satisfies the predicate.
type Predicate interface {
	Match(metadata Metadata) bool
}

type equalsPredicate struct {
	field string
	value interface{}
}

// Equals builds a predicate matching documents whose field holds value
// (typically a category id, but any comparable value is accepted).
func Equals(field string, value interface{}) Predicate {
	return &equalsPredicate{field: field, value: value}
}

func (p *equalsPredicate) Match(metadata Metadata) bool {
	v, ok := metadata[p.field]
	if !ok {
		return false
	}
	return valuesEqual(v, p.value)
}

type andPredicate struct{ predicates []Predicate }

// And matches documents satisfying every predicate.
func And(predicates ...Predicate) Predicate {
	return &andPredicate{predicates: predicates}
}

func (p *andPredicate) Match(metadata Metadata) bool {
	for _, pred := range p.predicates {
		if !pred.Match(metadata) {
			return false
		}
	}
	return true
}

type orPredicate struct{ predicates []Predicate }

// Or matches documents satisfying at least one predicate.
func Or(predicates ...Predicate) Predicate {
	return &orPredicate{predicates: predicates}
}

func (p *orPredicate) Match(metadata Metadata) bool {
	for _, pred := range p.predicates {
		if pred.Match(metadata) {
			return true
		}
	}
	return false
}

type notPredicate struct{ predicate Predicate }

// Not negates a predicate.
func Not(predicate Predicate) Predicate {
	return &notPredicate{predicate: predicate}
}

func (p *notPredicate) Match(metadata Metadata) bool {
	return !p.predicate.Match(metadata)
}

// Comparison operators, kept from the teacher's richer filter algebra as
// additive extensions over the category-id primary contract.

type comparisonOp int

const (
	opGreaterThan comparisonOp = iota
	opLessThan
	opGreaterOrEqual
	opLessOrEqual
)

type comparisonPredicate struct {
	field string
	op    comparisonOp
	value interface{}
}

func Gt(field string, value interface{}) Predicate {
	return &comparisonPredicate{field: field, op: opGreaterThan, value: value}
}

func Lt(field string, value interface{}) Predicate {
	return &comparisonPredicate{field: field, op: opLessThan, value: value}
}

func Gte(field string, value interface{}) Predicate {
	return &comparisonPredicate{field: field, op: opGreaterOrEqual, value: value}
}

func Lte(field string, value interface{}) Predicate {
	return &comparisonPredicate{field: field, op: opLessOrEqual, value: value}
}

func (p *comparisonPredicate) Match(metadata Metadata) bool {
	v, ok := metadata[p.field]
	if !ok {
		return false
	}
	cmp := compareValues(v, p.value)
	switch p.op {
	case opGreaterThan:
		return cmp > 0
	case opLessThan:
		return cmp < 0
	case opGreaterOrEqual:
		return cmp >= 0
	default:
		return cmp <= 0
	}
}

type rangePredicate struct {
	field    string
	min, max interface{}
}

// Range matches documents whose field falls within [min, max] inclusive;
// either bound may be nil to leave it open.
func Range(field string, min, max interface{}) Predicate {
	return &rangePredicate{field: field, min: min, max: max}
}

func (p *rangePredicate) Match(metadata Metadata) bool {
	v, ok := metadata[p.field]
	if !ok {
		return false
	}
	if p.min != nil && compareValues(v, p.min) < 0 {
		return false
	}
	if p.max != nil && compareValues(v, p.max) > 0 {
		return false
	}
	return true
}

type inListPredicate struct {
	field  string
	values []interface{}
	negate bool
}

func In(field string, values ...interface{}) Predicate {
	return &inListPredicate{field: field, values: values}
}

func NotIn(field string, values ...interface{}) Predicate {
	return &inListPredicate{field: field, values: values, negate: true}
}

func (p *inListPredicate) Match(metadata Metadata) bool {
	v, ok := metadata[p.field]
	if !ok {
		return p.negate
	}
	found := false
	for _, candidate := range p.values {
		if valuesEqual(v, candidate) {
			found = true
			break
		}
	}
	if p.negate {
		return !found
	}
	return found
}

type existsPredicate struct {
	field  string
	exists bool
}

func Exists(field string) Predicate    { return &existsPredicate{field: field, exists: true} }
func NotExists(field string) Predicate { return &existsPredicate{field: field, exists: false} }

func (p *existsPredicate) Match(metadata Metadata) bool {
	_, ok := metadata[p.field]
	if p.exists {
		return ok
	}
	return !ok
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lon float64
}

type geoRadiusPredicate struct {
	field        string
	center       GeoPoint
	radiusMeters float64
}

// GeoRadius matches documents whose field holds a GeoPoint within
// radiusKm kilometers of (lat, lon).
func GeoRadius(field string, lat, lon, radiusKm float64) Predicate {
	return &geoRadiusPredicate{field: field, center: GeoPoint{Lat: lat, Lon: lon}, radiusMeters: radiusKm * 1000}
}

func (p *geoRadiusPredicate) Match(metadata Metadata) bool {
	v, ok := metadata[p.field]
	if !ok {
		return false
	}
	point, ok := asGeoPoint(v)
	if !ok {
		return false
	}
	return haversineMeters(p.center, point) <= p.radiusMeters
}

func asGeoPoint(v interface{}) (GeoPoint, bool) {
	switch val := v.(type) {
	case GeoPoint:
		return val, true
	case map[string]interface{}:
		lat, latOK := val["lat"].(float64)
		lon, lonOK := val["lon"].(float64)
		if !latOK || !lonOK {
			return GeoPoint{}, false
		}
		return GeoPoint{Lat: lat, Lon: lon}, true
	default:
		return GeoPoint{}, false
	}
}

func haversineMeters(p1, p2 GeoPoint) float64 {
	const earthRadiusMeters = 6371000.0
	lat1 := p1.Lat * math.Pi / 180.0
	lat2 := p2.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return toFloat64(a) == toFloat64(b)
	}
}

func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	af, bf := toFloat64(a), toFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return 0
	}
}
