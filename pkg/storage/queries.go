package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuttledoc/speechd/pkg/protocol"
	"github.com/cuttledoc/speechd/pkg/speech"
)

// TranscriptQuery represents search criteria for transcripts
type TranscriptQuery struct {
	Limit      int
	Offset     int
	Backend    string
	Since      *time.Time
	SearchText string
}

// TranscriptStats holds aggregate counters from the stats table
type TranscriptStats struct {
	TotalTranscripts  int            `json:"total_transcripts"`
	TotalFailed       int            `json:"total_failed"`
	TotalAudioSeconds float64        `json:"total_audio_seconds"`
	LastCleanup       *time.Time     `json:"last_cleanup,omitempty"`
	PerBackend        map[string]int `json:"per_backend"`
}

// GetTranscripts retrieves transcripts based on query criteria
func (ts *TranscriptStore) GetTranscripts(query TranscriptQuery) ([]*protocol.Transcript, error) {
	sqlQuery := `
		SELECT id, created_at, audio_path, backend, locale, text,
		       duration_seconds, processing_seconds, rms_db, peak_db
		FROM transcripts
		WHERE 1=1
	`
	args := []interface{}{}

	if query.Backend != "" {
		sqlQuery += " AND backend = ?"
		args = append(args, query.Backend)
	}

	if query.Since != nil {
		sqlQuery += " AND created_at >= ?"
		args = append(args, *query.Since)
	}

	if query.SearchText != "" {
		sqlQuery += " AND text LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(query.SearchText)+"%")
	}

	sqlQuery += " ORDER BY created_at DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		// SQLite rejects OFFSET without LIMIT
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := ts.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []*protocol.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, t)
	}

	return transcripts, rows.Err()
}

// GetTranscript retrieves a single transcript with its segments
func (ts *TranscriptStore) GetTranscript(id string) (*protocol.Transcript, error) {
	row := ts.db.QueryRow(`
		SELECT id, created_at, audio_path, backend, locale, text,
		       duration_seconds, processing_seconds, rms_db, peak_db
		FROM transcripts
		WHERE id = ?
	`, id)

	t, err := scanTranscript(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	segments, err := ts.getSegments(id)
	if err != nil {
		return nil, err
	}
	t.Segments = segments

	return t, nil
}

// getSegments loads the timed segments for a transcript
func (ts *TranscriptStore) getSegments(transcriptID string) ([]speech.Segment, error) {
	rows, err := ts.db.Query(`
		SELECT start_seconds, end_seconds, text
		FROM transcript_segments
		WHERE transcript_id = ?
		ORDER BY id ASC
	`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := []speech.Segment{}
	for rows.Next() {
		var seg speech.Segment
		if err := rows.Scan(&seg.Start, &seg.End, &seg.Text); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}

// GetRecentTranscripts retrieves the most recent transcripts
func (ts *TranscriptStore) GetRecentTranscripts(limit int) ([]*protocol.Transcript, error) {
	return ts.GetTranscripts(TranscriptQuery{Limit: limit})
}

// SearchTranscripts finds transcripts whose text contains the term
func (ts *TranscriptStore) SearchTranscripts(term string, limit int) ([]*protocol.Transcript, error) {
	return ts.GetTranscripts(TranscriptQuery{SearchText: term, Limit: limit})
}

// GetTranscriptCount returns the total number of stored transcripts
func (ts *TranscriptStore) GetTranscriptCount() (int, error) {
	var count int
	err := ts.db.QueryRow("SELECT COUNT(*) FROM transcripts").Scan(&count)
	return count, err
}

// GetStats returns aggregate statistics including per-backend counts
func (ts *TranscriptStore) GetStats() (*TranscriptStats, error) {
	stats := &TranscriptStats{
		PerBackend: make(map[string]int),
	}

	var lastCleanup sql.NullTime
	err := ts.db.QueryRow(`
		SELECT total_transcripts, total_failed, total_audio_seconds, last_cleanup
		FROM transcript_stats
		WHERE id = 1
	`).Scan(&stats.TotalTranscripts, &stats.TotalFailed, &stats.TotalAudioSeconds, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	if lastCleanup.Valid {
		t := lastCleanup.Time
		stats.LastCleanup = &t
	}

	rows, err := ts.db.Query("SELECT backend, COUNT(*) FROM transcripts GROUP BY backend")
	if err != nil {
		return nil, fmt.Errorf("failed to query backend counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var backend string
		var count int
		if err := rows.Scan(&backend, &count); err != nil {
			return nil, err
		}
		stats.PerBackend[backend] = count
	}

	return stats, rows.Err()
}

// rowScanner matches both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTranscript scans a transcript row into a protocol struct
func scanTranscript(row rowScanner) (*protocol.Transcript, error) {
	t := &protocol.Transcript{}
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.AudioPath, &t.Backend, &t.Locale, &t.Text,
		&t.DurationSeconds, &t.ProcessingSeconds, &t.RMSdB, &t.PeakdB,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// escapeLike escapes LIKE wildcards in user-supplied search terms
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
