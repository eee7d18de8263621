// Package store is the agent-local state store: installation identity,
// preferences, the client-side insight cache and the advisory daily
// usage counters. Everything lives in one SQLite file in the data dir.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kushscan/kushscan/internal/domain"
)

// Quota scopes, mirroring the server-side partitions.
const (
	ScopeInsight = "insight"
	ScopeCOA     = "coa"
)

// ClientCacheTTL is how long a locally cached insight stays valid. Much
// longer than the shared server cache: this copy serves exactly one user.
const ClientCacheTTL = 7 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	fingerprint TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	cached_at   INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS usage (
	scope      TEXT PRIMARY KEY,
	used_today INTEGER NOT NULL,
	reset_date TEXT NOT NULL
);
`

// Store wraps the agent's SQLite database.
type Store struct {
	db       *sql.DB
	path     string
	ceilings map[string]int
	now      func() time.Time
}

// NewStore opens (creating if needed) the store at dataDir. If dataDir is
// empty, defaults to ~/.kushscan/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kushscan", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "kushscan.db")

	// WAL mode so the relay and pipeline goroutines can read concurrently
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{
		db:   db,
		path: dbPath,
		ceilings: map[string]int{
			ScopeInsight: 50,
			ScopeCOA:     10,
		},
		now: time.Now,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InstallationID returns the installation token, generating and persisting
// it on first call. The token is an unauthenticated quota partition key,
// never an identity credential.
func (s *Store) InstallationID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'installation_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reading installation id: %w", err)
	}

	id = "ks_" + uuid.NewString()
	// INSERT OR IGNORE + re-read keeps generate-once under concurrent callers
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES ('installation_id', ?)`, id); err != nil {
		return "", fmt.Errorf("persisting installation id: %w", err)
	}
	if err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'installation_id'`).Scan(&id); err != nil {
		return "", fmt.Errorf("re-reading installation id: %w", err)
	}
	return id, nil
}

// Preferences returns the stored preferences, or nil when onboarding has
// not happened yet.
func (s *Store) Preferences() (*domain.UserPreferences, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'preferences'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}

	var prefs domain.UserPreferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	return &prefs, nil
}

// SetPreferences persists the preferences, overwriting any prior value.
func (s *Store) SetPreferences(prefs *domain.UserPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES ('preferences', ?)`, string(raw))
	if err != nil {
		return fmt.Errorf("persisting preferences: %w", err)
	}
	return nil
}

// AgeVerified reports whether the user passed the age gate.
func (s *Store) AgeVerified() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'age_verified'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading age verification: %w", err)
	}
	return value == "true", nil
}

// SetAgeVerified persists the age-gate flag.
func (s *Store) SetAgeVerified(verified bool) error {
	value := "false"
	if verified {
		value = "true"
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES ('age_verified', ?)`, value)
	if err != nil {
		return fmt.Errorf("persisting age verification: %w", err)
	}
	return nil
}

// CachedInsight returns the cached insight for a fingerprint. An expired
// entry is deleted as a side effect of the read and reported as a miss.
func (s *Store) CachedInsight(fingerprint string) (*domain.InsightResponse, error) {
	var (
		raw        string
		cachedAt   int64
		ttlSeconds int64
	)
	err := s.db.QueryRow(
		`SELECT data, cached_at, ttl_seconds FROM insights WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&raw, &cachedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached insight: %w", err)
	}

	age := s.now().Unix() - cachedAt
	if age > ttlSeconds {
		// lazy prune
		if _, err := s.db.Exec(`DELETE FROM insights WHERE fingerprint = ?`, fingerprint); err != nil {
			return nil, fmt.Errorf("pruning expired insight: %w", err)
		}
		return nil, domain.ErrCacheMiss
	}

	var insight domain.InsightResponse
	if err := json.Unmarshal([]byte(raw), &insight); err != nil {
		return nil, fmt.Errorf("decoding cached insight: %w", err)
	}
	return &insight, nil
}

// SetCachedInsight writes the insight for a fingerprint, unconditionally
// overwriting any existing entry.
func (s *Store) SetCachedInsight(fingerprint string, insight *domain.InsightResponse, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ClientCacheTTL
	}
	raw, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("encoding insight: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO insights (fingerprint, data, cached_at, ttl_seconds) VALUES (?, ?, ?, ?)`,
		fingerprint, string(raw), s.now().Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("persisting insight: %w", err)
	}
	return nil
}

// CheckQuota reports whether another call in the scope is allowed today
// and how many remain. Read-only: a stale reset date is treated as zero
// usage but not written back until an increment happens.
func (s *Store) CheckQuota(scope string) (bool, int, error) {
	ceiling := s.ceilings[scope]
	if ceiling <= 0 {
		return false, 0, nil
	}

	var (
		used      int
		resetDate string
	)
	err := s.db.QueryRow(`SELECT used_today, reset_date FROM usage WHERE scope = ?`, scope).Scan(&used, &resetDate)
	if errors.Is(err, sql.ErrNoRows) {
		return true, ceiling, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("reading usage: %w", err)
	}

	if resetDate != s.today() {
		used = 0
	}

	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining > 0, remaining, nil
}

// IncrementUsage bumps today's counter for the scope. It re-derives the
// day boundary itself rather than assuming CheckQuota just ran.
func (s *Store) IncrementUsage(scope string) error {
	today := s.today()

	var (
		used      int
		resetDate string
	)
	err := s.db.QueryRow(`SELECT used_today, reset_date FROM usage WHERE scope = ?`, scope).Scan(&used, &resetDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading usage: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) || resetDate != today {
		used = 0
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO usage (scope, used_today, reset_date) VALUES (?, ?, ?)`,
		scope, used+1, today,
	)
	if err != nil {
		return fmt.Errorf("persisting usage: %w", err)
	}
	return nil
}

func (s *Store) today() string {
	return s.now().Format("2006-01-02")
}
