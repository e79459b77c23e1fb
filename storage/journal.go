package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"casalista/models"
)

// JournalStore records operational history (upload runs, auth events) in a
// local SQLite file. Domain data never lands here; this is telemetry only.
type JournalStore struct {
	db *sql.DB
}

func NewJournalStore(dbPath string) (*JournalStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &JournalStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *JournalStore) Close() error {
	return s.db.Close()
}

func (s *JournalStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS upload_runs (
		id INTEGER PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		entries INTEGER,
		uploaded INTEGER,
		failed INTEGER,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS auth_events (
		id INTEGER PRIMARY KEY,
		timestamp DATETIME,
		kind TEXT,
		uid TEXT,
		detail TEXT
	);`

	_, err := s.db.Exec(schema)
	return err
}

// StartUploadRun opens a run record and returns its id.
func (s *JournalStore) StartUploadRun(entries int) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO upload_runs (started_at, entries, uploaded, failed, error_message)
		 VALUES (?, ?, 0, 0, '')`,
		time.Now(), entries,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *JournalStore) FinishUploadRun(id int64, uploaded, failed int, errorMessage string) error {
	_, err := s.db.Exec(
		`UPDATE upload_runs SET finished_at = ?, uploaded = ?, failed = ?, error_message = ? WHERE id = ?`,
		time.Now(), uploaded, failed, errorMessage, id,
	)
	return err
}

func (s *JournalStore) RecentUploadRuns(limit int) ([]models.UploadRun, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, entries, uploaded, failed, error_message
		 FROM upload_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.UploadRun
	for rows.Next() {
		var run models.UploadRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt,
			&run.Entries, &run.Uploaded, &run.Failed, &run.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *JournalStore) LogAuthEvent(kind models.AuthEventKind, uid, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO auth_events (timestamp, kind, uid, detail) VALUES (?, ?, ?, ?)`,
		time.Now(), string(kind), uid, detail,
	)
	return err
}

func (s *JournalStore) RecentAuthEvents(limit int) ([]models.AuthEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, kind, uid, detail FROM auth_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuthEvent
	for rows.Next() {
		var ev models.AuthEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &kind, &ev.UID, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Kind = models.AuthEventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}
