package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrNotFound = errors.New("not found")

const (
	DefaultLanguage = "en"
	DefaultTheme    = "light"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        email TEXT NOT NULL DEFAULT '',
        picture TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS analyses (
        id INTEGER PRIMARY KEY, -- creation time in unix milliseconds
        user_id INTEGER NOT NULL,
        symptoms TEXT NOT NULL,
        result_json TEXT NOT NULL,
        date TEXT NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses (user_id, id DESC);

    CREATE TABLE IF NOT EXISTS preferences (
        user_id INTEGER PRIMARY KEY,
        language TEXT NOT NULL,
        theme TEXT NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

// UpsertUser records the profile carried by the latest identity token.
func (s *SQLiteStore) UpsertUser(u *User) (*User, error) {
	_, err := s.db.Exec(`
        INSERT INTO users (external_user_id, name, email, picture) VALUES (?, ?, ?, ?)
        ON CONFLICT (external_user_id) DO UPDATE SET name = excluded.name, email = excluded.email, picture = excluded.picture`,
		u.ExternalID, u.Name, u.Email, u.Picture)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	user, err := s.GetUserByExternalID(u.ExternalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s missing after upsert", u.ExternalID)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByExternalID(externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, name, email, picture, created_at FROM users WHERE external_user_id = ?", externalUserID).
		Scan(&user.ID, &user.ExternalID, &user.Name, &user.Email, &user.Picture, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// PurgeUser removes a user's history, preferences and profile.
func (s *SQLiteStore) PurgeUser(externalUserID string) (int64, error) {
	user, err := s.GetUserByExternalID(externalUserID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrNotFound
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM analyses WHERE user_id = ?", user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}
	removed, _ := res.RowsAffected()
	if _, err := tx.Exec("DELETE FROM preferences WHERE user_id = ?", user.ID); err != nil {
		return 0, fmt.Errorf("failed to delete preferences: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM users WHERE id = ?", user.ID); err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return removed, nil
}

// Analysis methods

// SaveAnalysis stores a new immutable record. Its id is the creation time in
// milliseconds, bumped past the current maximum so ids stay unique and ordered.
func (s *SQLiteStore) SaveAnalysis(userID int64, symptoms string, result *AnalysisResult) (*SavedAnalysis, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin analysis insert: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(id) FROM analyses").Scan(&maxID); err != nil {
		return nil, fmt.Errorf("failed to read analysis sequence: %w", err)
	}

	now := time.Now()
	id := now.UnixMilli()
	if maxID.Valid && id <= maxID.Int64 {
		id = maxID.Int64 + 1
	}
	date := time.UnixMilli(id).UTC().Format(time.RFC3339Nano)

	stmt, err := tx.Prepare("INSERT INTO analyses (id, user_id, symptoms, result_json, date) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare analysis insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(id, userID, symptoms, string(resultBytes), date); err != nil {
		return nil, fmt.Errorf("failed to execute analysis insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit analysis insert: %w", err)
	}

	return &SavedAnalysis{ID: id, UserID: userID, Symptoms: symptoms, Result: *result, Date: date}, nil
}

// ListAnalyses returns the user's saved analyses, most recent first.
func (s *SQLiteStore) ListAnalyses(userID int64) ([]SavedAnalysis, error) {
	rows, err := s.db.Query("SELECT id, user_id, symptoms, result_json, date FROM analyses WHERE user_id = ? ORDER BY id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	analyses := []SavedAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

func (s *SQLiteStore) GetAnalysis(userID, id int64) (*SavedAnalysis, error) {
	row := s.db.QueryRow("SELECT id, user_id, symptoms, result_json, date FROM analyses WHERE id = ? AND user_id = ?", id, userID)
	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) DeleteAnalysis(userID, id int64) error {
	res, err := s.db.Exec("DELETE FROM analyses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*SavedAnalysis, error) {
	var a SavedAnalysis
	var resultJSON string
	if err := row.Scan(&a.ID, &a.UserID, &a.Symptoms, &resultJSON, &a.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis row: %w", err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &a.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis %d: %w", a.ID, err)
	}
	return &a, nil
}

// Preference methods

// GetPreferences returns the stored preferences, or defaults when none were saved.
func (s *SQLiteStore) GetPreferences(userID int64) (*Preferences, error) {
	prefs := Preferences{Language: DefaultLanguage, Theme: DefaultTheme}
	err := s.db.QueryRow("SELECT language, theme FROM preferences WHERE user_id = ?", userID).Scan(&prefs.Language, &prefs.Theme)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	return &prefs, nil
}

func (s *SQLiteStore) SavePreferences(userID int64, prefs *Preferences) error {
	_, err := s.db.Exec(`
        INSERT INTO preferences (user_id, language, theme) VALUES (?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET language = excluded.language, theme = excluded.theme`,
		userID, prefs.Language, prefs.Theme)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
