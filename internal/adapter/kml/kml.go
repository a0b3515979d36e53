// Package kml reads ALOHA threat-zone exports.
//
// ALOHA writes each threat zone as a Placemark inside a Folder named
// "Aloha Threat Zones". The placemark name carries the LOC level keywords and
// its geometry is a Polygon (or, for wind-direction confidence lines, a
// LineString) in lon,lat[,alt] tuples.
package kml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// ThreatZoneFolder is the folder name ALOHA gives its threat zones.
const ThreatZoneFolder = "Aloha Threat Zones"

// ErrNoThreatZones is returned for a document without named placemarks in
// the threat-zone folder.
var ErrNoThreatZones = errors.New("no threat zones found")

// ThreatZone is one placemark of the threat-zone folder.
type ThreatZone struct {
	Name        string
	Description string
	Level       domain.LocLevel
	// Matched is false when the name matched no LOC level keywords.
	Matched bool
	Rings   [][]geom.Point
}

// Document is a parsed ALOHA export.
type Document struct {
	Zones []ThreatZone
}

// LocType infers the LOC type from the first zone's name.
func (d *Document) LocType() (domain.LocType, error) {
	if len(d.Zones) == 0 {
		return 0, ErrNoThreatZones
	}
	t, ok := domain.InferLocType(d.Zones[0].Name)
	if !ok {
		return 0, &domain.UnknownVocabularyError{Kind: string(domain.EntityLocType), Name: d.Zones[0].Name}
	}
	return t, nil
}

type kmlRoot struct {
	Document *kmlContainer `xml:"Document"`
	Folders  []kmlFolder   `xml:"Folder"`
}

type kmlContainer struct {
	Documents []kmlContainer `xml:"Document"`
	Folders   []kmlFolder    `xml:"Folder"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string        `xml:"name"`
	Description   string        `xml:"description"`
	Polygons      []kmlPolygon  `xml:"Polygon"`
	LineStrings   []string      `xml:"LineString>coordinates"`
	MultiGeometry *kmlPlacemark `xml:"MultiGeometry"`
}

type kmlPolygon struct {
	Outer string   `xml:"outerBoundaryIs>LinearRing>coordinates"`
	Inner []string `xml:"innerBoundaryIs>LinearRing>coordinates"`
}

// ParseFile parses the ALOHA export at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kml: %w", err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse reads an ALOHA export. Placemarks outside the threat-zone folder and
// placemarks without a name are ignored.
func Parse(r io.Reader) (*Document, error) {
	var root kmlRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode kml: %w", err)
	}

	var folders []kmlFolder
	if root.Document != nil {
		folders = collectFolders(*root.Document)
	}
	folders = append(folders, flattenFolders(root.Folders)...)

	doc := &Document{}
	for _, folder := range folders {
		if strings.TrimSpace(folder.Name) != ThreatZoneFolder {
			continue
		}
		for _, pm := range folder.Placemarks {
			zone, err := parsePlacemark(pm)
			if err != nil {
				return nil, err
			}
			if zone.Name == "" {
				continue
			}
			doc.Zones = append(doc.Zones, zone)
		}
	}
	if len(doc.Zones) == 0 {
		return nil, ErrNoThreatZones
	}
	return doc, nil
}

func collectFolders(c kmlContainer) []kmlFolder {
	folders := flattenFolders(c.Folders)
	for _, d := range c.Documents {
		folders = append(folders, collectFolders(d)...)
	}
	return folders
}

func flattenFolders(in []kmlFolder) []kmlFolder {
	var out []kmlFolder
	for _, f := range in {
		out = append(out, f)
		out = append(out, flattenFolders(f.Folders)...)
	}
	return out
}

func parsePlacemark(pm kmlPlacemark) (ThreatZone, error) {
	zone := ThreatZone{
		Name:        strings.TrimSpace(pm.Name),
		Description: strings.TrimSpace(pm.Description),
	}
	zone.Level, zone.Matched = domain.MatchAlohaLevel(zone.Name)

	var coords []string
	for g := &pm; g != nil; g = g.MultiGeometry {
		for _, p := range g.Polygons {
			coords = append(coords, p.Outer)
			coords = append(coords, p.Inner...)
		}
		coords = append(coords, g.LineStrings...)
	}
	for _, c := range coords {
		ring, err := parseCoordinates(c)
		if err != nil {
			return ThreatZone{}, fmt.Errorf("placemark %q: %w", zone.Name, err)
		}
		if len(ring) > 0 {
			zone.Rings = append(zone.Rings, ring)
		}
	}
	return zone, nil
}

// parseCoordinates reads a whitespace separated list of lon,lat[,alt] tuples.
func parseCoordinates(s string) ([]geom.Point, error) {
	fields := strings.Fields(s)
	points := make([]geom.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed coordinate %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude %q: %w", parts[0], err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude %q: %w", parts[1], err)
		}
		points = append(points, geom.Point{X: lon, Y: lat})
	}
	return points, nil
}
