package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source identifies the tool that produced a job's input file.
type Source string

const (
	SourceMOHID  Source = "mohid"  // MOHID HDF5 results
	SourceNetCDF Source = "netcdf" // CF/COARDS classic NetCDF grids
	SourceAloha  Source = "aloha"  // ALOHA threat-zone KML
)

// IsGrid reports whether the source carries a gridded field to contour.
func (s Source) IsGrid() bool {
	return s == SourceMOHID || s == SourceNetCDF
}

// InitialDateLayout is the layout of Job.InitialDate.
const InitialDateLayout = "2006-01-02 15:04:05"

// Described is a name with a free-text description.
type Described struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// LevelSpec selects the LOC type and the threshold levels to extract.
type LevelSpec struct {
	Type  string      `json:"type" yaml:"type"`
	Level []Threshold `json:"level" yaml:"level"`
}

// Job is one ingestion request.
type Job struct {
	Source      Source    `json:"source" yaml:"source"`
	FileIn      string    `json:"file_in" yaml:"file_in"`
	Campaign    Described `json:"campaign" yaml:"campaign"`
	Model       string    `json:"model" yaml:"model"`
	Simulation  Described `json:"simulation" yaml:"simulation"`
	Levels      LevelSpec `json:"levels" yaml:"levels"`
	Variable    string    `json:"variable,omitempty" yaml:"variable,omitempty"`
	InitialDate string    `json:"initial_date,omitempty" yaml:"initial_date,omitempty"`
	SRS         string    `json:"srs,omitempty" yaml:"srs,omitempty"`
}

// RawJob is an undecoded job document taken from a queue.
type RawJob struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// DecodeJob parses a job document. format is "yaml" or "json"; YAML is a
// superset of JSON so an empty format decodes either.
func DecodeJob(data []byte, format string) (Job, error) {
	var job Job
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &job); err != nil {
			return Job{}, fmt.Errorf("decode json job: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &job); err != nil {
			return Job{}, fmt.Errorf("decode yaml job: %w", err)
		}
	default:
		return Job{}, fmt.Errorf("unsupported job format %q", format)
	}
	return job, nil
}

// LoadJobFile reads and validates a job document from disk. A relative
// file_in is resolved against the job file's directory.
func LoadJobFile(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job file: %w", err)
	}
	job, err := DecodeJob(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Job{}, fmt.Errorf("%s: %w", path, err)
	}
	if job.FileIn != "" && !filepath.IsAbs(job.FileIn) {
		job.FileIn = filepath.Join(filepath.Dir(path), job.FileIn)
	}
	if err := job.Validate(); err != nil {
		return Job{}, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// ParseRawJob decodes and validates a queued job. The content-type header
// selects the format, defaulting to YAML which also accepts JSON.
func ParseRawJob(raw RawJob) (Job, error) {
	format := ""
	switch ct := raw.Headers["content-type"]; {
	case strings.Contains(ct, "json"):
		format = "json"
	case strings.Contains(ct, "yaml"):
		format = "yaml"
	}
	job, err := DecodeJob(raw.Value, format)
	if err != nil {
		return Job{}, fmt.Errorf("parse raw job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, fmt.Errorf("parse raw job: %w", err)
	}
	return job, nil
}

// Validate checks the job for missing fields and resolves its vocabulary, so
// an unknown LOC type or level fails before anything is written.
func (j Job) Validate() error {
	switch j.Source {
	case SourceMOHID, SourceNetCDF, SourceAloha:
	case "":
		return errors.New("source is required")
	default:
		return fmt.Errorf("unknown source %q", j.Source)
	}
	if j.FileIn == "" {
		return errors.New("file_in is required")
	}
	if j.Campaign.Name == "" {
		return errors.New("campaign.name is required")
	}
	if j.Model == "" {
		return errors.New("model is required")
	}
	if j.Simulation.Name == "" {
		return errors.New("simulation.name is required")
	}

	if j.Source == SourceAloha {
		if j.InitialDate == "" {
			return errors.New("initial_date is required for aloha jobs")
		}
		if _, err := j.ParseInitialDate(); err != nil {
			return err
		}
		if j.Levels.Type != "" {
			if _, err := ParseLocType(j.Levels.Type); err != nil {
				return err
			}
		}
		return nil
	}

	locType, err := ParseLocType(j.Levels.Type)
	if err != nil {
		return err
	}
	if len(j.Levels.Level) == 0 {
		return errors.New("levels.level must list at least one threshold")
	}
	seen := make(map[LocLevel]bool, len(j.Levels.Level))
	for _, th := range j.Levels.Level {
		level, err := ParseLocLevel(th.Name)
		if err != nil {
			return err
		}
		if level.LocType() != locType {
			return &UnknownVocabularyError{Kind: string(EntityLocLevel), Name: th.Name, LocType: locType.String()}
		}
		if seen[level] {
			return fmt.Errorf("duplicate level %q", th.Name)
		}
		seen[level] = true
	}
	if j.InitialDate != "" {
		if _, err := j.ParseInitialDate(); err != nil {
			return err
		}
	}
	return nil
}

// LocType resolves the job's LOC type.
func (j Job) LocType() (LocType, error) {
	return ParseLocType(j.Levels.Type)
}

// FieldVariable is the grid variable thresholds are evaluated against.
func (j Job) FieldVariable(t LocType) string {
	if j.Variable != "" {
		return j.Variable
	}
	return t.DefaultVariable()
}

// ParseInitialDate parses the job's explicit initial date as UTC.
func (j Job) ParseInitialDate() (time.Time, error) {
	t, err := time.ParseInLocation(InitialDateLayout, j.InitialDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse initial_date %q: %w", j.InitialDate, err)
	}
	return t, nil
}
