package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// appConfig gathers the run settings read from the environment at
// startup. Database credentials are the exception, db.go reads its own
// DB_* variables when the sink opens.
type appConfig struct {
	PlaylistURL     string
	OutputPath      string
	Headless        bool
	WindowWidth     int
	WindowHeight    int
	ProfileDir      string
	BlockMedia      bool
	DebugScreenshot bool
	EnrichOEmbed    bool
	DBHost          string
}

func loadAppConfig() (appConfig, error) {
	cfg := appConfig{
		PlaylistURL:     os.Getenv("PLAYLIST_URL"),
		OutputPath:      envOr("OUTPUT_JSON", "playlist_min.json"),
		Headless:        envBool("HEADLESS", true),
		WindowWidth:     envInt("WINDOW_WIDTH", 1400),
		WindowHeight:    envInt("WINDOW_HEIGHT", 900),
		ProfileDir:      os.Getenv("CHROME_PROFILE_DIR"),
		BlockMedia:      envBool("BLOCK_MEDIA", true),
		DebugScreenshot: envBool("DEBUG_SCREENSHOT", false),
		EnrichOEmbed:    envBool("OEMBED_ENRICH", false),
		DBHost:          os.Getenv("DB_HOST"),
	}
	if cfg.PlaylistURL == "" {
		return cfg, fmt.Errorf("PLAYLIST_URL is not set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q", key, v)
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

// writeTracksJSON writes the track list as indented JSON with HTML
// escaping off, so links stay readable in the output file.
func writeTracksJSON(path string, tracks []Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tracks); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg, err := loadAppConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Printf("Starting scrape for playlist: %s\n", cfg.PlaylistURL)

	tracks, scrapeErr := scrapePlaylist(cfg)
	if scrapeErr != nil {
		if len(tracks) == 0 {
			log.Fatalf("Error scraping playlist: %v", scrapeErr)
		}
		// Keep what the aborted run collected, then exit nonzero below.
		log.Printf("Scrape aborted early: %v", scrapeErr)
		log.Printf("Keeping the %d tracks collected before the failure", len(tracks))
	}

	if cfg.EnrichOEmbed && len(tracks) > 0 {
		client := newOEmbedClient()
		n := client.enrichTracks(context.Background(), tracks)
		log.Printf("Enriched %d of %d tracks with oembed thumbnails", n, len(tracks))
	}

	if err := writeTracksJSON(cfg.OutputPath, tracks); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
	log.Printf("Saved %d tracks to %s\n", len(tracks), cfg.OutputPath)

	if cfg.DBHost != "" {
		if err := saveToDatabase(tracks); err != nil {
			log.Fatalf("Error saving to database: %v", err)
		}
		log.Println("Tracks successfully saved to database")
	}

	if scrapeErr != nil {
		os.Exit(1)
	}
}
