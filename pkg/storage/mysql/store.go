// Package mysql provides the MySQL implementation of the event and profile stores.
//
// Structured profile fields and event metadata are stored as JSON columns.
// Decay math runs in Go, so the backend only needs plain keyed reads and
// single-row updates.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// Store implements storage.EventStore and storage.ProfileStore using MySQL.
type Store struct {
	db            *sql.DB
	eventsTable   string
	profilesTable string
}

// Config contains MySQL configuration.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	EventsTable   string
	ProfilesTable string
}

// NewStore creates a new MySQL Store.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.EventsTable == "" {
		cfg.EventsTable = "memory_events"
	}
	if cfg.ProfilesTable == "" {
		cfg.ProfilesTable = "user_profiles"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLStore: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			entity_id VARCHAR(255) NOT NULL,
			entity_type VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			metadata JSON,
			base_weight DOUBLE NOT NULL DEFAULT 1.0,
			reinforced_count INT NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6),
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_user (user_id, created_at),
			INDEX idx_entity (entity_id)
		)
	`, s.eventsTable)

	if _, err := s.db.ExecContext(ctx, eventsQuery); err != nil {
		return fmt.Errorf("initTables: create events table: %w", err)
	}

	profilesQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id VARCHAR(255) PRIMARY KEY,
			static_context JSON,
			dynamic_context JSON,
			search_patterns JSON,
			preferred_types JSON,
			top_resources JSON,
			stats JSON,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)
	`, s.profilesTable)

	if _, err := s.db.ExecContext(ctx, profilesQuery); err != nil {
		return fmt.Errorf("initTables: create profiles table: %w", err)
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
		nullableString(metadataJSON),
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
		// MySQL reports 0 affected rows for no-op updates as well; confirm
		// existence before reporting a missing event.
		if _, err := s.Get(ctx, event.ID); err != nil {
			return storage.ErrEventNotFound
		}
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
		ON DUPLICATE KEY UPDATE
			static_context = VALUES(static_context),
			dynamic_context = VALUES(dynamic_context),
			search_patterns = VALUES(search_patterns),
			preferred_types = VALUES(preferred_types),
			top_resources = VALUES(top_resources),
			stats = VALUES(stats),
			updated_at = VALUES(updated_at)
	`, s.profilesTable)

	fields, err := marshalProfileFields(profile)
	if err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		profile.UserID,
		nullableString(fields.staticContext),
		nullableString(fields.dynamicContext),
		nullableString(fields.searchPatterns),
		nullableString(fields.preferredTypes),
		nullableString(fields.topResources),
		nullableString(fields.stats),
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
