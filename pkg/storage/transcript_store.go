package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cuttledoc/speechd/pkg/protocol"
)

// ErrNotFound is returned when a transcript ID does not exist
var ErrNotFound = errors.New("transcript not found")

// TranscriptStore handles persistent storage of transcription results
type TranscriptStore struct {
	db             *sql.DB
	dbPath         string
	maxTranscripts int
}

// NewTranscriptStore creates a new transcript store with SQLite backend
func NewTranscriptStore(dbPath string, maxTranscripts int) (*TranscriptStore, error) {
	store := &TranscriptStore{
		dbPath:         dbPath,
		maxTranscripts: maxTranscripts,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize transcript store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (ts *TranscriptStore) initialize() error {
	// Handle empty database path
	if ts.dbPath == "" {
		ts.dbPath = "./speechd.db"
	}

	// Create database directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(ts.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// Build connection string properly with query parameters
	connectionString := ts.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	// Open database connection
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	ts.db = db

	// Create tables
	if err := ts.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	// Create indexes for performance
	if err := ts.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Printf("Transcript store initialized: %s (max %d transcripts)", ts.dbPath, ts.maxTranscripts)
	return nil
}

// createTables creates the database schema
func (ts *TranscriptStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		audio_path TEXT NOT NULL,
		backend TEXT NOT NULL,
		locale TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0.0,
		processing_seconds REAL NOT NULL DEFAULT 0.0,
		rms_db REAL NOT NULL DEFAULT 0.0,
		peak_db REAL NOT NULL DEFAULT 0.0
	);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id TEXT NOT NULL,
		start_seconds REAL NOT NULL DEFAULT 0.0,
		end_seconds REAL NOT NULL DEFAULT 0.0,
		text TEXT NOT NULL,
		FOREIGN KEY (transcript_id) REFERENCES transcripts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS transcript_stats (
		id INTEGER PRIMARY KEY,
		total_transcripts INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		total_audio_seconds REAL NOT NULL DEFAULT 0.0,
		last_cleanup DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Initialize stats if empty
	INSERT OR IGNORE INTO transcript_stats (id, total_transcripts, total_failed, total_audio_seconds)
	VALUES (1, 0, 0, 0.0);
	`

	_, err := ts.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for performance
func (ts *TranscriptStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transcripts_backend ON transcripts(backend)",
		"CREATE INDEX IF NOT EXISTS idx_transcripts_locale ON transcripts(locale)",
		"CREATE INDEX IF NOT EXISTS idx_segments_transcript_id ON transcript_segments(transcript_id)",
	}

	for _, indexSQL := range indexes {
		if _, err := ts.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// StoreTranscript stores a transcript and its segments. A missing ID or
// CreatedAt is filled in before the insert.
func (ts *TranscriptStore) StoreTranscript(transcript *protocol.Transcript) error {
	if transcript.ID == "" {
		transcript.ID = uuid.NewString()
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now().UTC()
	}

	tx, err := ts.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Insert transcript
	query := `
		INSERT INTO transcripts (
			id, created_at, audio_path, backend, locale, text,
			duration_seconds, processing_seconds, rms_db, peak_db
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		transcript.ID, transcript.CreatedAt, transcript.AudioPath,
		transcript.Backend, transcript.Locale, transcript.Text,
		transcript.DurationSeconds, transcript.ProcessingSeconds,
		transcript.RMSdB, transcript.PeakdB,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}

	// Insert segments
	for _, seg := range transcript.Segments {
		_, err = tx.Exec(
			"INSERT INTO transcript_segments (transcript_id, start_seconds, end_seconds, text) VALUES (?, ?, ?, ?)",
			transcript.ID, seg.Start, seg.End, seg.Text,
		)
		if err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	// Update stats
	if err := ts.updateStats(tx, transcript.DurationSeconds); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	// Check if we need to cleanup old transcripts
	if err := ts.cleanupOldTranscripts(tx); err != nil {
		log.Printf("Warning: failed to cleanup old transcripts: %v", err)
	}

	return tx.Commit()
}

// updateStats updates transcript statistics
func (ts *TranscriptStore) updateStats(tx *sql.Tx, audioSeconds float64) error {
	query := `
		UPDATE transcript_stats SET
			total_transcripts = total_transcripts + 1,
			total_audio_seconds = total_audio_seconds + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`

	_, err := tx.Exec(query, audioSeconds)
	return err
}

// RecordFailure bumps the failed-job counter in the stats table
func (ts *TranscriptStore) RecordFailure() error {
	_, err := ts.db.Exec(
		"UPDATE transcript_stats SET total_failed = total_failed + 1, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
	)
	return err
}

// DeleteTranscript removes a transcript; segments cascade
func (ts *TranscriptStore) DeleteTranscript(id string) error {
	result, err := ts.db.Exec("DELETE FROM transcripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupOldTranscripts removes transcripts beyond the maximum limit
// (exported for manual cleanup)
func (ts *TranscriptStore) CleanupOldTranscripts() error {
	tx, err := ts.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ts.cleanupOldTranscripts(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// cleanupOldTranscripts removes transcripts beyond the maximum limit
func (ts *TranscriptStore) cleanupOldTranscripts(tx *sql.Tx) error {
	if ts.maxTranscripts <= 0 {
		return nil // No limit
	}

	// Count current transcripts
	var count int
	err := tx.QueryRow("SELECT COUNT(*) FROM transcripts").Scan(&count)
	if err != nil {
		return err
	}

	if count <= ts.maxTranscripts {
		return nil // Within limit
	}

	// Delete oldest transcripts beyond limit
	deleteCount := count - ts.maxTranscripts
	query := `
		DELETE FROM transcripts
		WHERE id IN (
			SELECT id FROM transcripts
			ORDER BY created_at ASC
			LIMIT ?
		)
	`

	_, err = tx.Exec(query, deleteCount)
	if err != nil {
		return err
	}

	// Update cleanup timestamp
	_, err = tx.Exec("UPDATE transcript_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// DeleteOlderThan removes transcripts created before the cutoff and
// returns how many were deleted
func (ts *TranscriptStore) DeleteOlderThan(cutoff time.Time) (int, error) {
	result, err := ts.db.Exec("DELETE FROM transcripts WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old transcripts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		ts.db.Exec("UPDATE transcript_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	}
	return int(affected), nil
}

// Close closes the database connection
func (ts *TranscriptStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}
