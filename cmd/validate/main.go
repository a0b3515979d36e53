// Command validate preflights job documents before they are queued. Each job
// goes through four phases: decoding, vocabulary and field validation, input
// file access, and a read of the source itself (grid axes, time steps and the
// field's range against the requested thresholds, or the ALOHA threat zones).
// Nothing is written to the database.
//
// Usage:
//
//	go run ./cmd/validate jobs/*.yaml
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/intecmar/cop-loc-etl/internal/adapter/gridfile"
	"github.com/intecmar/cop-loc-etl/internal/adapter/kml"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/grid"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// candidate is a job document that survived decoding.
type candidate struct {
	path string
	job  domain.Job
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s job.yaml...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(flag.Args()))
}

func run(paths []string) int {
	fmt.Println("=== LOC Job Preflight ===")
	fmt.Println()

	decoded, decode := decodeJobs(paths)
	valid, fields := validateJobs(decoded)
	readable, files := checkInputs(valid)
	sources := checkSources(readable)

	phases := []*phase{decode, fields, files, sources}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Jobs: %d given, %d decoded, %d valid, %d readable\n",
		len(paths), len(decoded), len(valid), len(readable))

	for _, p := range phases {
		if p.passed() && len(p.notes) == 0 {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  ERROR %s\n", e)
		}
		for _, n := range p.notes {
			fmt.Printf("  note  %s\n", n)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("\033[31mPreflight FAILED\033[0m")
		return 1
	}
	fmt.Println("\033[32mAll checks passed\033[0m")
	return 0
}

func decodeJobs(paths []string) ([]candidate, *phase) {
	p := &phase{name: "Phase 1: Job documents decode"}
	var out []candidate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		job, err := domain.DecodeJob(data, strings.TrimPrefix(filepath.Ext(path), "."))
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		if job.FileIn != "" && !filepath.IsAbs(job.FileIn) {
			job.FileIn = filepath.Join(filepath.Dir(path), job.FileIn)
		}
		out = append(out, candidate{path: path, job: job})
	}
	return out, p
}

func validateJobs(in []candidate) ([]candidate, *phase) {
	p := &phase{name: "Phase 2: Fields and vocabulary"}
	var out []candidate
	for _, c := range in {
		if err := c.job.Validate(); err != nil {
			p.errorf("%s: %v", c.path, err)
			continue
		}
		out = append(out, c)
	}
	return out, p
}

func checkInputs(in []candidate) ([]candidate, *phase) {
	p := &phase{name: "Phase 3: Input files"}
	var out []candidate
	for _, c := range in {
		info, err := os.Stat(c.job.FileIn)
		switch {
		case err != nil:
			p.errorf("%s: %v", c.path, err)
		case info.IsDir():
			p.errorf("%s: %s is a directory", c.path, c.job.FileIn)
		case info.Size() == 0:
			p.errorf("%s: %s is empty", c.path, c.job.FileIn)
		default:
			out = append(out, c)
		}
	}
	return out, p
}

func checkSources(in []candidate) *phase {
	p := &phase{name: "Phase 4: Source contents"}
	for _, c := range in {
		if c.job.Source == domain.SourceAloha {
			checkAloha(p, c)
		} else {
			checkGrid(p, c)
		}
	}
	return p
}

func checkGrid(p *phase, c candidate) {
	src, err := gridfile.Open(c.job.FileIn, c.job.Source)
	if err != nil {
		p.errorf("%s: %v", c.path, err)
		return
	}
	defer src.Close()

	lats, err := src.Latitudes()
	if err != nil {
		p.errorf("%s: latitudes: %v", c.path, err)
		return
	}
	if _, err := grid.NewAxisMapper(lats); err != nil {
		p.errorf("%s: latitude axis: %v", c.path, err)
	}
	lons, err := src.Longitudes()
	if err != nil {
		p.errorf("%s: longitudes: %v", c.path, err)
		return
	}
	if _, err := grid.NewAxisMapper(lons); err != nil {
		p.errorf("%s: longitude axis: %v", c.path, err)
	}
	dates, err := src.Dates()
	if err != nil {
		p.errorf("%s: dates: %v", c.path, err)
		return
	}
	if len(dates) == 0 {
		p.errorf("%s: grid has no time steps", c.path)
		return
	}

	locType, _ := c.job.LocType()
	variable := c.job.FieldVariable(locType)
	field, err := grid.MaxOverTime(src, variable, len(dates))
	if err != nil {
		p.errorf("%s: %v", c.path, err)
		return
	}
	rows, cols := field.Dims()
	if len(lats) < rows || len(lons) < cols {
		p.errorf("%s: axes of %d latitudes and %d longitudes do not cover a %dx%d field",
			c.path, len(lats), len(lons), rows, cols)
	}

	lo, hi := fieldRange(field)
	if math.IsNaN(hi) {
		p.errorf("%s: %s has no valid cells", c.path, variable)
		return
	}
	for _, th := range c.job.Levels.Level {
		if th.Value > hi || th.Value < lo {
			p.notef("%s: level %q at %g lies outside %s range [%g, %g] and will be omitted",
				c.path, th.Name, th.Value, variable, lo, hi)
		}
	}
}

func checkAloha(p *phase, c candidate) {
	doc, err := kml.ParseFile(c.job.FileIn)
	if err != nil {
		p.errorf("%s: %v", c.path, err)
		return
	}
	got, err := doc.LocType()
	want, wantErr := c.job.LocType()
	switch {
	case err != nil:
		p.notef("%s: cannot infer LOC type from placemarks: %v", c.path, err)
	case wantErr == nil && got != want:
		p.notef("%s: job declares %s but the export holds %s zones", c.path, want, got)
	}
	chosen := got
	if wantErr == nil {
		chosen = want
	}
	for _, z := range doc.Zones {
		switch {
		case !z.Matched:
			p.notef("%s: placemark %q matches no LOC level and will be omitted", c.path, z.Name)
		case err == nil || wantErr == nil:
			if z.Level.LocType() != chosen {
				p.notef("%s: placemark %q is not a %s level and will be omitted", c.path, z.Name, chosen)
			}
		}
	}
}

// fieldRange returns the min and max of the non-NaN cells, or NaN, NaN when
// every cell is missing.
func fieldRange(m *mat.Dense) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(lo) || v < lo {
				lo = v
			}
			if math.IsNaN(hi) || v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}
