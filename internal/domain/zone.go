package domain

import (
	"time"

	"github.com/ctessum/geom"
)

// Threshold is one requested contour level.
type Threshold struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Value       float64 `json:"value" yaml:"value"`
}

// Zone is the assembled geometry of one LOC level, in lon/lat degrees.
type Zone struct {
	Level       LocLevel
	Description string
	Polygon     geom.Polygon
}

// OmittedLevel records a requested level that produced no geometry.
type OmittedLevel struct {
	Name   string
	Reason string
}

// ZoneSet is everything extracted from one source file.
type ZoneSet struct {
	LocType     LocType
	InitialDate time.Time
	Zones       []Zone
	Omitted     []OmittedLevel
}

// IngestReport summarizes one file ingestion.
type IngestReport struct {
	File        string
	Source      Source
	LocType     LocType
	InitialDate time.Time
	Stored      []string
	Existing    []string
	Omitted     []OmittedLevel
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the wall time the ingestion took.
func (r IngestReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
