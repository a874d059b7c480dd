// Package sqlite provides the SQLite implementation of the event and profile stores.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. Structured profile fields and event metadata
// are stored as JSON strings in TEXT columns; decay math runs in Go, so the
// backend only needs plain keyed reads and single-row updates.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// Store implements storage.EventStore and storage.ProfileStore using SQLite.
type Store struct {
	// db is the SQLite database connection.
	db *sql.DB

	// eventsTable is the name of the table storing memory events.
	eventsTable string

	// profilesTable is the name of the table storing user profiles.
	profilesTable string
}

// Config contains configuration for creating a SQLite Store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// EventsTable is the events table name (default: "memory_events").
	EventsTable string

	// ProfilesTable is the profiles table name (default: "user_profiles").
	ProfilesTable string
}

// NewStore creates a new SQLite Store.
//
// Parameters:
//   - cfg: Configuration containing database path and table names
//
// Returns:
//   - *Store: The store instance
//   - error: Error if database connection or table creation fails
func NewStore(cfg *Config) (*Store, error) {
	if cfg.EventsTable == "" {
		cfg.EventsTable = "memory_events"
	}
	if cfg.ProfilesTable == "" {
		cfg.ProfilesTable = "user_profiles"
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	store := &Store{
		db:            db,
		eventsTable:   cfg.EventsTable,
		profilesTable: cfg.ProfilesTable,
	}

	if err := store.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// initTables initializes the database table structure.
func (s *Store) initTables(ctx context.Context) error {
	eventsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			base_weight REAL NOT NULL DEFAULT 1.0,
			reinforced_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			updated_at DATETIME NOT NULL
		)
	`, s.eventsTable)

	if _, err := s.db.ExecContext(ctx, eventsQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	for _, indexQuery := range []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id, created_at)`, s.eventsTable, s.eventsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_entity ON %s(entity_id)`, s.eventsTable, s.eventsTable),
	} {
		if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	profilesQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			static_context TEXT,
			dynamic_context TEXT,
			search_patterns TEXT,
			preferred_types TEXT,
			top_resources TEXT,
			stats TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, s.profilesTable)

	if _, err := s.db.ExecContext(ctx, profilesQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert persists a new memory event.
func (s *Store) Insert(ctx context.Context, event *storage.MemoryEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, entity_id, entity_type, content, metadata, base_weight, reinforced_count, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.eventsTable)

	metadataJSON, err := marshalJSON(event.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.EntityID,
		string(event.EntityType),
		event.Content,
		metadataJSON,
		event.BaseWeight,
		event.ReinforcedCount,
		event.CreatedAt,
		nullableTime(event.ExpiresAt),
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Get retrieves an event by ID.
func (s *Store) Get(ctx context.Context, id int64) (*storage.MemoryEvent, error) {
	query := fmt.Sprintf(`%s WHERE id = ?`, s.selectEvents())

	event, err := s.scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return event, nil
}

// Update persists the mutable weight fields of an existing event.
func (s *Store) Update(ctx context.Context, event *storage.MemoryEvent) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET base_weight = ?, reinforced_count = ?, updated_at = ?
		WHERE id = ?
	`, s.eventsTable)

	result, err := s.db.ExecContext(ctx, query,
		event.BaseWeight,
		event.ReinforcedCount,
		event.UpdatedAt,
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrEventNotFound
	}

	return nil
}

// Delete removes an event by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.eventsTable)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrEventNotFound
	}

	return nil
}

// ListByUser retrieves up to limit events for a user, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*storage.MemoryEvent, error) {
	query := fmt.Sprintf(`%s WHERE user_id = ? ORDER BY created_at DESC, id DESC`, s.selectEvents())
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryEvents(ctx, "ListByUser", query, args...)
}

// ListByEntity retrieves all events referencing an entity, across users.
func (s *Store) ListByEntity(ctx context.Context, entityID string) ([]*storage.MemoryEvent, error) {
	query := fmt.Sprintf(`%s WHERE entity_id = ? ORDER BY created_at DESC, id DESC`, s.selectEvents())
	return s.queryEvents(ctx, "ListByEntity", query, entityID)
}

// ListAll retrieves every stored event.
func (s *Store) ListAll(ctx context.Context) ([]*storage.MemoryEvent, error) {
	query := fmt.Sprintf(`%s ORDER BY created_at DESC, id DESC`, s.selectEvents())
	return s.queryEvents(ctx, "ListAll", query)
}

// GetProfile retrieves a profile by user ID, or nil when absent.
func (s *Store) GetProfile(ctx context.Context, userID string) (*storage.UserProfile, error) {
	query := fmt.Sprintf(`
		SELECT user_id, static_context, dynamic_context, search_patterns,
		       preferred_types, top_resources, stats, created_at, updated_at
		FROM %s WHERE user_id = ?
	`, s.profilesTable)

	var profile storage.UserProfile
	var staticJSON, dynamicJSON, patternsJSON, typesJSON, resourcesJSON, statsJSON sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&staticJSON,
		&dynamicJSON,
		&patternsJSON,
		&typesJSON,
		&resourcesJSON,
		&statsJSON,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}

	if err := unmarshalProfileFields(&profile, staticJSON, dynamicJSON, patternsJSON, typesJSON, resourcesJSON, statsJSON); err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}

	return &profile, nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile *storage.UserProfile) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(user_id, static_context, dynamic_context, search_patterns, preferred_types, top_resources, stats, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			static_context = excluded.static_context,
			dynamic_context = excluded.dynamic_context,
			search_patterns = excluded.search_patterns,
			preferred_types = excluded.preferred_types,
			top_resources = excluded.top_resources,
			stats = excluded.stats,
			updated_at = excluded.updated_at
	`, s.profilesTable)

	fields, err := marshalProfileFields(profile)
	if err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		profile.UserID,
		fields.staticContext,
		fields.dynamicContext,
		fields.searchPatterns,
		fields.preferredTypes,
		fields.topResources,
		fields.stats,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// selectEvents returns the shared SELECT clause for event queries.
func (s *Store) selectEvents() string {
	return fmt.Sprintf(`
		SELECT id, user_id, entity_id, entity_type, content, metadata,
		       base_weight, reinforced_count, created_at, expires_at, updated_at
		FROM %s`, s.eventsTable)
}

// queryEvents runs an event query and scans all rows.
func (s *Store) queryEvents(ctx context.Context, op, query string, args ...interface{}) ([]*storage.MemoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var events []*storage.MemoryEvent
	for rows.Next() {
		event, err := s.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// scanEvent scans a memory event from a database row or rows.
func (s *Store) scanEvent(scanner interface{}) (*storage.MemoryEvent, error) {
	var event storage.MemoryEvent
	var entityType string
	var metadataStr sql.NullString
	var expiresAt sql.NullTime

	var err error
	switch sc := scanner.(type) {
	case *sql.Row:
		err = sc.Scan(
			&event.ID,
			&event.UserID,
			&event.EntityID,
			&entityType,
			&event.Content,
			&metadataStr,
			&event.BaseWeight,
			&event.ReinforcedCount,
			&event.CreatedAt,
			&expiresAt,
			&event.UpdatedAt,
		)
	case *sql.Rows:
		err = sc.Scan(
			&event.ID,
			&event.UserID,
			&event.EntityID,
			&entityType,
			&event.Content,
			&metadataStr,
			&event.BaseWeight,
			&event.ReinforcedCount,
			&event.CreatedAt,
			&expiresAt,
			&event.UpdatedAt,
		)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}

	if err != nil {
		return nil, err
	}

	event.EntityType = storage.EntityType(entityType)

	if metadataStr.Valid && metadataStr.String != "" {
		if err := unmarshalJSON(metadataStr.String, &event.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	if expiresAt.Valid {
		event.ExpiresAt = &expiresAt.Time
	}

	return &event, nil
}

