// Command genmock reads a CSV of sample observations and generates KMA-shaped
// nowcast fixtures with the running index each one produces. It uses the
// domain package so the recorded expectations match real service behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv data/mock/observations.csv \
//	  -out data/mock/nowcast_fixtures.json
//
// CSV columns: name,lat,lon,T1H,REH,WSD,RN1. An empty value is omitted from
// the envelope, as KMA does for a missing category.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/running-index-service/internal/adapter/kma"
	"github.com/couchcryptid/running-index-service/internal/domain"
)

// fixtureTime is 18:05 KST, inside the 18:00 nowcast batch.
var fixtureTime = time.Date(2026, time.January, 15, 9, 5, 0, 0, time.UTC)

var categories = []string{
	domain.CategoryTemperature,
	domain.CategoryHumidity,
	domain.CategoryWindSpeed,
	domain.CategoryPrecipitation,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV of sample observations")
	out := flag.String("out", "", "output path for the nowcast fixture JSON")
	flag.Parse()

	if *csvPath == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -out")
	}

	// Set a fixed clock for reproducible base times.
	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	fixtures, err := processCSV(*csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}

	if err := writeJSON(*out, fixtures); err != nil {
		return fmt.Errorf("writing fixtures: %w", err)
	}
	log.Printf("wrote %d fixtures: %s", len(fixtures), *out)

	printStats(fixtures)
	return nil
}

func processCSV(path string) ([]kma.Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	base := domain.CurrentBase(domain.ProductNowcast)
	defaults := domain.DefaultNeutralDefaults()

	fixtures := make([]kma.Fixture, 0, len(rows)-1)
	for i, row := range rows[1:] {
		name := get(row, colIdx, "name")
		lat, err := strconv.ParseFloat(get(row, colIdx, "lat"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", i+2, err)
		}
		lon, err := strconv.ParseFloat(get(row, colIdx, "lon"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: lon: %w", i+2, err)
		}

		cell := domain.Project(lat, lon)
		items := buildItems(row, colIdx, cell, base)

		raw, issues := domain.ParseNowcastItems(items)
		for _, is := range issues {
			log.Printf("line %d: unparseable %s value %q", i+2, is.Category, is.Raw)
		}
		obs := defaults.Apply(raw)
		result := domain.Score(obs)

		fixtures = append(fixtures, kma.Fixture{
			Name:     name,
			Lat:      lat,
			Lon:      lon,
			Cell:     cell,
			Base:     base,
			Response: kma.NewResponse(items),
			Expected: kma.Expectation{
				Score:     result.Score,
				Grade:     result.Grade,
				Defaulted: obs.DefaultedFields(),
				Advice:    result.Advice,
			},
		})
	}
	return fixtures, nil
}

func buildItems(row []string, colIdx map[string]int, cell domain.GridCell, base domain.Base) []domain.Item {
	var items []domain.Item
	for _, cat := range categories {
		v := get(row, colIdx, cat)
		if v == "" {
			continue
		}
		items = append(items, domain.Item{
			BaseDate:  base.Date,
			BaseTime:  base.Time,
			Category:  cat,
			NX:        cell.NX,
			NY:        cell.NY,
			ObsrValue: domain.ItemValue(v),
		})
	}
	return items
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(fixtures []kma.Fixture) {
	counts := make(map[domain.Grade]int)
	for _, f := range fixtures {
		counts[f.Expected.Grade]++
	}
	fmt.Println()
	fmt.Println("Grade distribution:")
	for _, g := range domain.Grades {
		fmt.Printf("  %-6s %d\n", g, counts[g])
	}
}
