package domain

import (
	"fmt"
	"time"
)

// EntityKind names a level of the LOC hierarchy.
type EntityKind string

const (
	EntityModel      EntityKind = "model"
	EntityCampaign   EntityKind = "campaign"
	EntitySimulation EntityKind = "simulation"
	EntityOutput     EntityKind = "output"
	EntityLoc        EntityKind = "loc"
	EntityLine       EntityKind = "line"
	EntityLocType    EntityKind = "loc_type"
	EntityLocLevel   EntityKind = "loc_level"
)

// OutputTypeLOCAreas is the output type every LOC ingestion writes under.
const OutputTypeLOCAreas = "LOC AREAS"

// SimulationKey is the natural key of a simulation.
type SimulationKey struct {
	CampaignID int64
	ModelID    int64
	Name       string
}

func (k SimulationKey) String() string {
	return fmt.Sprintf("(campaign=%d, model=%d, name=%q)", k.CampaignID, k.ModelID, k.Name)
}

// OutputKey is the natural key of a simulation output.
type OutputKey struct {
	SimulationID int64
	InitialDate  time.Time
	OutputType   string
}

// NewOutputKey builds an OutputKey with the initial date normalized to UTC
// whole seconds, the precision it is stored and compared at.
func NewOutputKey(simulationID int64, initialDate time.Time, outputType string) OutputKey {
	return OutputKey{
		SimulationID: simulationID,
		InitialDate:  NormalizeDate(initialDate),
		OutputType:   outputType,
	}
}

func (k OutputKey) String() string {
	return fmt.Sprintf("(simulation=%d, initial_date=%s, type=%q)",
		k.SimulationID, k.InitialDate.Format(time.RFC3339), k.OutputType)
}

// NormalizeDate converts t to UTC and drops sub-second precision.
func NormalizeDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// LineRecord is one level geometry destined for the Line table.
type LineRecord struct {
	Level       LocLevel
	Envelope    string // WKT polygon, lon/lat, SRID 4326
	Description string
}

// LineOutcome reports what StoreLine did with a record.
type LineOutcome int

const (
	LineStored LineOutcome = iota + 1
	LineExisting
)

func (o LineOutcome) String() string {
	switch o {
	case LineStored:
		return "stored"
	case LineExisting:
		return "existing"
	default:
		return "unknown"
	}
}
