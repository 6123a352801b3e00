package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"city_limits/pkg/api"
	"city_limits/pkg/pathfile"
)

func main() {
	pathsFile := flag.String("paths", "paths.bin", "Path to stitched boundaries binary (empty = start with no boundaries)")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	start := time.Now()

	// Load boundaries.
	var store *api.Store
	if *pathsFile != "" {
		log.Printf("Loading boundaries from %s...", *pathsFile)
		boundaries, err := pathfile.ReadBoundaries(*pathsFile)
		if err != nil {
			log.Fatalf("Failed to load boundaries: %v", err)
		}
		log.Println("Building R-tree spatial index...")
		store = api.NewStore(boundaries)
	} else {
		store = api.NewStore(nil)
	}
	stats := store.Stats()
	log.Printf("Loaded: %d boundaries, %d paths (%d closed), %d points",
		stats.NumBoundaries, stats.NumPaths, stats.NumClosed, stats.NumPoints)
	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(reg)

	// Setup HTTP server.
	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin

	handlers := api.NewHandlers(store, metrics)
	srv := api.NewServer(cfg, handlers, reg)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
