package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/osm"

	"city_limits/pkg/export"
	osmparser "city_limits/pkg/osm"
	"city_limits/pkg/overpass"
	"city_limits/pkg/pathfile"
	"city_limits/pkg/stitch"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, "; ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// loader extracts the stitch input of one relation.
type loader func(ctx context.Context, opt osmparser.ParseOptions) (*osmparser.ParseResult, error)

func main() {
	input := flag.String("input", "", "Local OSM data: .osm.pbf, .osm/.xml or Overpass .json (empty = query Overpass)")
	relations := flag.String("relation", "", "Comma-separated relation ids to stitch")
	var cities listFlag
	flag.Var(&cities, "city", `City to look up on Overpass as "City, ST" (repeatable)`)
	overpassURL := flag.String("overpass-url", envOr("OVERPASS_URL", overpass.DefaultURL), "Overpass interpreter URL")
	dedup := flag.Bool("dedup-joints", false, "Drop the duplicated point where two fragments meet")
	roles := flag.String("roles", "", "Comma-separated member roles to keep (e.g. outer); empty keeps all")
	output := flag.String("output", "paths.bin", "Output binary paths file")
	geojsonOut := flag.String("geojson", "", "Also write a GeoJSON FeatureCollection to this file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	if *relations == "" && len(cities) == 0 {
		fmt.Fprintln(os.Stderr, `Usage: stitch (--relation id[,id...] | --city "City, ST" ...) [--input file] [--output paths.bin] [--geojson out.geojson] [--dedup-joints] [--roles outer]`)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	client := overpass.NewClient(*overpassURL)

	// Step 1: Resolve relation ids.
	ids, err := parseRelationIDs(*relations)
	if err != nil {
		log.Fatalf("Invalid --relation: %v", err)
	}
	for _, c := range cities {
		city, state, err := overpass.ParseCityState(c)
		if err != nil {
			log.Fatalf("Invalid --city %q: %v", c, err)
		}
		log.Printf("Looking up %s, %s...", city, state)
		id, err := client.FindCityRelation(ctx, city, state)
		if err != nil {
			log.Fatalf("City lookup failed: %v", err)
		}
		log.Printf("%s, %s is relation %d", city, state, id)
		ids = append(ids, id)
	}

	// Step 2: Pick the data source.
	load, err := newLoader(ctx, *input, client)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}

	// Step 3: Stitch each relation in its own session.
	var roleList []string
	if *roles != "" {
		roleList = strings.Split(*roles, ",")
	}
	opts := stitch.Options{DedupJoints: *dedup}

	boundaries := make([]export.Boundary, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id osm.RelationID) {
			defer wg.Done()
			boundaries[i], errs[i] = stitchRelation(ctx, load, osmparser.ParseOptions{RelationID: id, Roles: roleList}, opts)
			boundaries[i].Color = export.Color(i)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			log.Fatalf("Relation %d: %v", ids[i], err)
		}
	}

	// Step 4: Write outputs.
	log.Printf("Writing binary to %s...", *output)
	if err := pathfile.WriteBoundaries(*output, boundaries); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}
	if *geojsonOut != "" {
		log.Printf("Writing GeoJSON to %s...", *geojsonOut)
		if err := writeGeoJSON(*geojsonOut, boundaries); err != nil {
			log.Fatalf("Failed to write GeoJSON: %v", err)
		}
	}

	info, _ := os.Stat(*output)
	log.Printf("Done in %s. Output: %s (%.1f KB)", time.Since(start).Round(time.Millisecond), *output, float64(info.Size())/1024)
}

func stitchRelation(ctx context.Context, load loader, opt osmparser.ParseOptions, opts stitch.Options) (export.Boundary, error) {
	res, err := load(ctx, opt)
	if err != nil {
		return export.Boundary{}, err
	}
	ds := res.Dataset

	paths, err := stitch.StitchDataset(ds, opts)
	if err != nil {
		return export.Boundary{}, err
	}

	closed := 0
	for _, p := range paths {
		if p.Closed() {
			closed++
		}
	}
	log.Printf("Relation %d (%s): %d fragments, %d components, %d paths (%d closed)",
		opt.RelationID, res.Name, len(ds.Fragments), len(stitch.Components(ds.Fragments)), len(paths), closed)

	return export.Boundary{
		RelationID: int64(opt.RelationID),
		Name:       res.Name,
		Paths:      paths,
	}, nil
}

// newLoader returns a loader over the input file, or over Overpass when
// input is empty. XML and JSON documents are read once and shared; PBF
// files are reopened per relation so sessions can scan concurrently.
func newLoader(ctx context.Context, input string, client *overpass.Client) (loader, error) {
	if input == "" {
		return func(ctx context.Context, opt osmparser.ParseOptions) (*osmparser.ParseResult, error) {
			return client.FetchRelation(ctx, opt.RelationID, opt.Roles...)
		}, nil
	}

	switch strings.ToLower(filepath.Ext(input)) {
	case ".pbf":
		return func(ctx context.Context, opt osmparser.ParseOptions) (*osmparser.ParseResult, error) {
			f, err := os.Open(input)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return osmparser.Parse(ctx, f, opt)
		}, nil

	case ".json":
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		resp, err := overpass.Decode(f)
		if err != nil {
			return nil, err
		}
		return sharedLoader(resp.OSM()), nil

	case ".osm", ".xml":
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		o, err := osmparser.ReadXML(ctx, f)
		if err != nil {
			return nil, err
		}
		return sharedLoader(o), nil
	}
	return nil, fmt.Errorf("unsupported input extension %q", filepath.Ext(input))
}

func sharedLoader(o *osm.OSM) loader {
	return func(_ context.Context, opt osmparser.ParseOptions) (*osmparser.ParseResult, error) {
		return osmparser.FromOSM(o, opt)
	}
}

func parseRelationIDs(s string) ([]osm.RelationID, error) {
	var ids []osm.RelationID
	if s == "" {
		return ids, nil
	}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad relation id %q", part)
		}
		ids = append(ids, osm.RelationID(id))
	}
	return ids, nil
}

func writeGeoJSON(path string, boundaries []export.Boundary) error {
	data, err := json.Marshal(export.FeatureCollection(boundaries...))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
