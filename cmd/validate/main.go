// Command validate checks the grid projection against a KMA grid table and,
// optionally, replays genmock fixtures through parsing and scoring to confirm
// the recorded expectations still hold.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -grid-csv data/grid/reference_cells.csv \
//	  -fixtures data/mock/nowcast_fixtures.json
//
// The grid CSV has columns name,nx,ny,lon,lat. Exit status is 1 when any
// row disagrees.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/running-index-service/internal/adapter/kma"
	"github.com/couchcryptid/running-index-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	checks int
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	gridCSV := flag.String("grid-csv", "", "KMA grid table CSV (name,nx,ny,lon,lat)")
	fixtures := flag.String("fixtures", "", "optional genmock fixture JSON to replay")
	flag.Parse()

	if *gridCSV == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*gridCSV, *fixtures))
}

func run(gridPath, fixturePath string) int {
	fmt.Println("=== Running Index Validation ===")
	fmt.Println()

	rows, err := loadCSV(gridPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load grid CSV: %v\n", err)
		return 1
	}

	phases := []*phase{validateGrid(rows)}

	if fixturePath != "" {
		fixtures, err := kma.LoadFixtures(fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load fixtures: %v\n", err)
			return 1
		}
		phases = append(phases, validateFixtures(fixtures))
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %4d checked  %s\n", p.name, p.checks, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	header := all[0]
	var rows []csvRow
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[strings.TrimSpace(h)] = strings.TrimSpace(row[j])
			}
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return rows, nil
}

// ── Phase 1: Grid projection ──
// Projects every row's lon/lat and compares against the published cell.

func validateGrid(rows []csvRow) *phase {
	p := &phase{name: "Phase 1: Grid projection (LCC vs table)"}

	for _, row := range rows {
		name := row.fields["name"]
		want, lat, lon, err := parseGridRow(row)
		if err != nil {
			p.errorf("line %d (%s): %v", row.lineNum, name, err)
			continue
		}
		p.checks++

		got := domain.Project(lat, lon)
		if got != want {
			p.errorf("line %d (%s): lat=%v lon=%v projected (%d,%d), table has (%d,%d)",
				row.lineNum, name, lat, lon, got.NX, got.NY, want.NX, want.NY)
		}
	}
	return p
}

func parseGridRow(row csvRow) (domain.GridCell, float64, float64, error) {
	nx, err := strconv.Atoi(row.fields["nx"])
	if err != nil {
		return domain.GridCell{}, 0, 0, fmt.Errorf("nx: %w", err)
	}
	ny, err := strconv.Atoi(row.fields["ny"])
	if err != nil {
		return domain.GridCell{}, 0, 0, fmt.Errorf("ny: %w", err)
	}
	lon, err := strconv.ParseFloat(row.fields["lon"], 64)
	if err != nil {
		return domain.GridCell{}, 0, 0, fmt.Errorf("lon: %w", err)
	}
	lat, err := strconv.ParseFloat(row.fields["lat"], 64)
	if err != nil {
		return domain.GridCell{}, 0, 0, fmt.Errorf("lat: %w", err)
	}
	return domain.GridCell{NX: nx, NY: ny}, lat, lon, nil
}

// ── Phase 2: Fixture replay ──
// Re-parses and re-scores every fixture and compares with what was recorded.

func validateFixtures(fixtures []kma.Fixture) *phase {
	p := &phase{name: "Phase 2: Fixture replay (parse + score)"}
	defaults := domain.DefaultNeutralDefaults()

	for _, f := range fixtures {
		p.checks++

		if cell := domain.Project(f.Lat, f.Lon); cell != f.Cell {
			p.errorf("%s: grid (%d,%d) recorded, projection gives (%d,%d)", f.Name, f.Cell.NX, f.Cell.NY, cell.NX, cell.NY)
		}

		raw, issues := domain.ParseNowcastItems(f.Response.Response.Body.Items.Item)
		for _, is := range issues {
			p.errorf("%s: unparseable %s value %q", f.Name, is.Category, is.Raw)
		}
		obs := defaults.Apply(raw)
		result := domain.Score(obs)

		if result.Score != f.Expected.Score {
			p.errorf("%s: score=%d, expected %d", f.Name, result.Score, f.Expected.Score)
		}
		if result.Grade != f.Expected.Grade {
			p.errorf("%s: grade=%s, expected %s", f.Name, result.Grade, f.Expected.Grade)
		}
		if got := obs.DefaultedFields(); !slices.Equal(got, f.Expected.Defaulted) {
			p.errorf("%s: defaulted=%v, expected %v", f.Name, got, f.Expected.Defaulted)
		}
		if !slices.Equal(result.Advice, f.Expected.Advice) {
			p.errorf("%s: advice=%v, expected %v", f.Name, result.Advice, f.Expected.Advice)
		}
	}
	return p
}
