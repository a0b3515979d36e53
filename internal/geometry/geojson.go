package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// Feature is a GeoJSON feature with free-form properties.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties,omitempty"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []*Feature{}}
}

// Add appends p with the given properties.
func (fc *FeatureCollection) Add(p geom.Polygon, props map[string]any) error {
	g, err := geojson.ToGeoJSON(p)
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	fc.Features = append(fc.Features, &Feature{Type: "Feature", Geometry: g, Properties: props})
	return nil
}

// MarshalIndent renders the collection as indented JSON.
func (fc *FeatureCollection) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}
