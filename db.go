package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

const createTracksTable = `CREATE TABLE IF NOT EXISTS playlist_tracks (
	track_id VARCHAR(64) PRIMARY KEY,
	name TEXT NOT NULL,
	artists TEXT,
	link TEXT,
	embed_url TEXT,
	thumbnail_url TEXT
)`

func saveToDatabase(tracks []Track) error {
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASS")
	dbName := os.Getenv("DB_NAME")
	dbHost := os.Getenv("DB_HOST")

	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", dbUser, dbPass, dbHost, dbName))
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("error pinging database: %w", err)
	}

	if _, err := db.Exec(createTracksTable); err != nil {
		return fmt.Errorf("error ensuring tracks table: %w", err)
	}

	inserted, skipped, err := saveTracks(db, tracks)
	if err != nil {
		return err
	}

	log.Printf("Inserted %d new tracks, skipped %d already stored", inserted, skipped)
	return nil
}

// saveTracks inserts the tracks that are not in the table yet, keyed by
// the stable track id. The whole batch runs in one transaction.
func saveTracks(db *sql.DB, tracks []Track) (int, int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingTrackIDs(tx)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare("INSERT INTO playlist_tracks(track_id, name, artists, link, embed_url, thumbnail_url) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, 0, fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	inserted, skipped := 0, 0
	for _, track := range tracks {
		if existing[track.ID] {
			skipped++
			continue
		}

		_, err = stmt.Exec(track.ID, track.Name, strings.Join(track.Artists, ", "), track.Link, track.EmbedURL, track.Thumbnail)
		if err != nil {
			return 0, 0, fmt.Errorf("error inserting track %s: %w", track.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("error committing transaction: %w", err)
	}

	return inserted, skipped, nil
}

func existingTrackIDs(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query("SELECT track_id FROM playlist_tracks")
	if err != nil {
		return nil, fmt.Errorf("error querying existing tracks: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning track id: %w", err)
		}
		existing[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return existing, nil
}
