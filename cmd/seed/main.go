// The seed binary is the one-off catalog migration: it loads a JSON seed
// file of pool facilities, classifies each entry's source kind, geocodes its
// address when credentials are configured, and upserts it into the catalog.
//
// Unlike the refinement pipeline, seeding is allowed to abort on a
// precondition: when -expect is set and the seed file length does not match,
// nothing is written. That guards against feeding a truncated or
// misassembled seed file into the catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/poolhopper/freeswim-etl/internal/adapter/mongo"
	"github.com/poolhopper/freeswim-etl/internal/adapter/naver"
	"github.com/poolhopper/freeswim-etl/internal/config"
	"github.com/poolhopper/freeswim-etl/internal/domain"
	"github.com/poolhopper/freeswim-etl/internal/observability"
)

// seedEntry is one facility in the seed file. One explicit record per
// facility; no parallel lists to keep aligned.
type seedEntry struct {
	PoolCode string `json:"pool_code"`
	Title    string `json:"title"`
	Address  string `json:"address"`
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
}

func main() {
	seedPath := flag.String("file", "seed.json", "path to the facility seed file")
	expect := flag.Int("expect", 0, "expected number of seed entries; 0 disables the check")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	entries, err := loadSeedFile(*seedPath)
	if err != nil {
		logger.Error("failed to load seed file", "file", *seedPath, "error", err)
		os.Exit(1)
	}
	if *expect > 0 && len(entries) != *expect {
		logger.Error("seed catalog length mismatch, aborting before any write",
			"expected", *expect, "got", len(entries))
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := mongo.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close(ctx) //nolint:errcheck

	var geocoder domain.Geocoder
	if err := cfg.ValidateGeocoding(); err == nil {
		client := naver.NewClient(cfg.NaverClientID, cfg.NaverClientSecret, cfg.GeocodeTimeout, logger)
		geocoder = naver.NewCachedGeocoder(client, cfg.GeocodeCacheSize)
		logger.Info("geocoding enabled", "cache_size", cfg.GeocodeCacheSize)
	} else {
		logger.Info("geocoding disabled", "reason", err)
	}

	seeded, geocoded := 0, 0
	for _, entry := range entries {
		facility := toFacility(entry)

		if geocoder != nil && facility.Address != "" {
			result, err := geocoder.Geocode(ctx, facility.Address)
			switch {
			case err != nil:
				logger.Warn("geocoding failed, seeding without location",
					"pool_code", facility.PoolCode, "address", facility.Address, "error", err)
			case result.Found:
				facility.Location = domain.NewGeoPoint(result.Lat, result.Lng)
				geocoded++
			}
		}

		if err := store.UpsertFacility(ctx, facility); err != nil {
			logger.Error("upsert failed", "pool_code", facility.PoolCode, "error", err)
			continue
		}
		seeded++
	}

	logger.Info("seeding finished", "entries", len(entries), "seeded", seeded, "geocoded", geocoded)
}

func loadSeedFile(path string) ([]seedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// toFacility builds the catalog record for one seed entry. Entries without
// a code get a generated one; entries without a URL are seeded as
// non-operating so the refinement pass skips them.
func toFacility(entry seedEntry) domain.Facility {
	poolCode := entry.PoolCode
	if poolCode == "" {
		poolCode = domain.NewPoolCode()
	}
	kind := domain.ClassifySourceURL(entry.URL)

	return domain.Facility{
		PoolCode:    poolCode,
		Title:       entry.Title,
		Address:     entry.Address,
		SourceID:    entry.SourceID,
		URL:         entry.URL,
		SourceKind:  kind,
		IsOperating: kind != domain.SourceNone,
	}
}
