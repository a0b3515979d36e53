// Command gengrid writes a synthetic dispersion plume as a classic NetCDF
// file together with a job document that ingests it. The plume is a Gaussian
// puff drifting east; its per-cell maximum over time is an elongated blob, so
// each PAC threshold yields one nested zone.
//
// Usage:
//
//	go run ./cmd/gengrid -out testdata/plume
//	locetl ingest --dry-run testdata/plume/job.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/intecmar/cop-loc-etl/internal/adapter/gridfile"
	"github.com/intecmar/cop-loc-etl/internal/domain"
)

const variable = "concentration"

// Ría de Arousa, roughly.
var (
	originLat = 42.50
	originLon = -8.95
)

type plume struct {
	rows, cols, steps int
	spacing           float64 // degrees
	peak              float64 // ppm
	sigma             float64 // cells
	drift             float64 // cells per step
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for plume.nc and job.yaml")
	rows := flag.Int("rows", 40, "latitude cells")
	cols := flag.Int("cols", 60, "longitude cells")
	steps := flag.Int("steps", 6, "hourly time steps")
	peak := flag.Float64("peak", 100, "peak concentration in ppm")
	date := flag.String("date", "2024-03-14 06:00:00", "reference date of the first step (UTC)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	ref, err := time.ParseInLocation(domain.InitialDateLayout, *date, time.UTC)
	if err != nil {
		return fmt.Errorf("parse -date: %w", err)
	}

	p := plume{rows: *rows, cols: *cols, steps: *steps, spacing: 0.005, peak: *peak, sigma: 4, drift: 3}
	ds := p.dataset(ref)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	ncPath := filepath.Join(*out, "plume.nc")
	if err := gridfile.WriteNetCDF(ncPath, ds); err != nil {
		return err
	}
	log.Printf("wrote %s: %dx%d cells, %d steps", ncPath, p.rows, p.cols, p.steps)

	jobPath := filepath.Join(*out, "job.yaml")
	if err := writeJob(jobPath, p, ref); err != nil {
		return fmt.Errorf("writing job: %w", err)
	}
	log.Printf("wrote %s", jobPath)
	return nil
}

func (p plume) dataset(ref time.Time) gridfile.Dataset {
	ds := gridfile.Dataset{
		Latitudes:  make([]float64, p.rows),
		Longitudes: make([]float64, p.cols),
		Reference:  ref,
		Hours:      make([]float64, p.steps),
		Fields:     map[string][]*mat.Dense{},
		FillValue:  -9999,
	}
	for i := range ds.Latitudes {
		ds.Latitudes[i] = originLat + float64(i)*p.spacing
	}
	for j := range ds.Longitudes {
		ds.Longitudes[j] = originLon + float64(j)*p.spacing
	}

	steps := make([]*mat.Dense, p.steps)
	for t := range steps {
		ds.Hours[t] = float64(t)
		steps[t] = p.step(t)
	}
	ds.Fields[variable] = steps
	return ds
}

// step is the puff at hour t. It spreads and thins as it drifts.
func (p plume) step(t int) *mat.Dense {
	m := mat.NewDense(p.rows, p.cols, nil)
	cr := float64(p.rows) / 2
	cc := float64(p.cols)/4 + float64(t)*p.drift
	sigma := p.sigma * (1 + 0.1*float64(t))
	amp := p.peak / (1 + 0.15*float64(t))
	for r := 0; r < p.rows; r++ {
		for c := 0; c < p.cols; c++ {
			dr, dc := float64(r)-cr, float64(c)-cc
			m.Set(r, c, amp*math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma)))
		}
	}
	return m
}

func writeJob(path string, p plume, ref time.Time) error {
	job := domain.Job{
		Source:     domain.SourceNetCDF,
		FileIn:     "plume.nc",
		Campaign:   domain.Described{Name: "Synthetic", Description: "Generated by gengrid"},
		Model:      "gengrid",
		Simulation: domain.Described{Name: "plume", Description: fmt.Sprintf("%d steps, peak %.0f ppm", p.steps, p.peak)},
		Levels: domain.LevelSpec{
			Type: domain.LocTypePAC.String(),
			Level: []domain.Threshold{
				{Name: domain.LevelPAC1.String(), Description: "PAC-1", Value: p.peak * 0.05},
				{Name: domain.LevelPAC2.String(), Description: "PAC-2", Value: p.peak * 0.2},
				{Name: domain.LevelPAC3.String(), Description: "PAC-3", Value: p.peak * 0.5},
			},
		},
		Variable:    variable,
		InitialDate: ref.Format(domain.InitialDateLayout),
	}
	if err := job.Validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(job); err != nil {
		return err
	}
	return enc.Close()
}
