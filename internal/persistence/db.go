// Package persistence provides SQLite-based storage for entities, the event
// log, and world metadata. Terrain, deposits, and traces are regenerated on
// every start and are not stored.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/engine"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for ecosystem storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		donor_email TEXT NOT NULL,
		species TEXT NOT NULL,
		status TEXT NOT NULL,
		personality_json TEXT NOT NULL,
		appearance_json TEXT NOT NULL,
		position_json TEXT NOT NULL,
		relationships_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_active TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		time TEXT NOT NULL,
		category TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);
	CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// entityRow is the stored shape of an entity. Nested values are JSON columns;
// timestamps are RFC 3339 text so they sort lexically.
type entityRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	DonorEmail    string `db:"donor_email"`
	Species       string `db:"species"`
	Status        string `db:"status"`
	Personality   string `db:"personality_json"`
	Appearance    string `db:"appearance_json"`
	Position      string `db:"position_json"`
	Relationships string `db:"relationships_json"`
	CreatedAt     string `db:"created_at"`
	LastActive    string `db:"last_active"`
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func toRow(e agents.Entity) (entityRow, error) {
	personality, err := json.Marshal(e.Personality)
	if err != nil {
		return entityRow{}, err
	}
	appearance, err := json.Marshal(e.Appearance)
	if err != nil {
		return entityRow{}, err
	}
	position, _ := json.Marshal(e.Position)
	rels := e.Relationships
	if rels == nil {
		rels = []string{}
	}
	relationships, _ := json.Marshal(rels)

	return entityRow{
		ID:            e.ID,
		Name:          e.Name,
		DonorEmail:    e.DonorEmail,
		Species:       e.Species,
		Status:        string(e.Status),
		Personality:   string(personality),
		Appearance:    string(appearance),
		Position:      string(position),
		Relationships: string(relationships),
		CreatedAt:     e.CreatedAt.UTC().Format(timeLayout),
		LastActive:    e.LastActive.UTC().Format(timeLayout),
	}, nil
}

func (r entityRow) entity() (agents.Entity, error) {
	e := agents.Entity{
		ID:         r.ID,
		Name:       r.Name,
		DonorEmail: r.DonorEmail,
		Species:    r.Species,
		Status:     agents.Status(r.Status),
	}
	if err := json.Unmarshal([]byte(r.Personality), &e.Personality); err != nil {
		return e, fmt.Errorf("entity %s personality: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Appearance), &e.Appearance); err != nil {
		return e, fmt.Errorf("entity %s appearance: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Position), &e.Position); err != nil {
		return e, fmt.Errorf("entity %s position: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Relationships), &e.Relationships); err != nil {
		return e, fmt.Errorf("entity %s relationships: %w", r.ID, err)
	}
	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, r.CreatedAt); err != nil {
		return e, fmt.Errorf("entity %s created_at: %w", r.ID, err)
	}
	if e.LastActive, err = time.Parse(timeLayout, r.LastActive); err != nil {
		return e, fmt.Errorf("entity %s last_active: %w", r.ID, err)
	}
	return e, nil
}

const insertEntity = `INSERT INTO entities
	(id, name, donor_email, species, status, personality_json, appearance_json,
	 position_json, relationships_json, created_at, last_active)
	VALUES (:id, :name, :donor_email, :species, :status, :personality_json, :appearance_json,
	 :position_json, :relationships_json, :created_at, :last_active)`

// CreateEntity stores a new entity.
func (db *DB) CreateEntity(e agents.Entity) error {
	row, err := toRow(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	if _, err := db.conn.NamedExec(insertEntity, row); err != nil {
		return fmt.Errorf("insert entity %s: %w", e.ID, err)
	}
	return nil
}

// GetEntity loads one entity. Returns ErrNotFound if it does not exist.
func (db *DB) GetEntity(id string) (agents.Entity, error) {
	var row entityRow
	err := db.conn.Get(&row, "SELECT * FROM entities WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return agents.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return agents.Entity{}, fmt.Errorf("get entity %s: %w", id, err)
	}
	return row.entity()
}

// UpdateEntity overwrites a stored entity. Returns ErrNotFound if it does not
// exist.
func (db *DB) UpdateEntity(e agents.Entity) error {
	row, err := toRow(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	res, err := db.conn.NamedExec(`UPDATE entities SET
		name = :name, donor_email = :donor_email, species = :species, status = :status,
		personality_json = :personality_json, appearance_json = :appearance_json,
		position_json = :position_json, relationships_json = :relationships_json,
		created_at = :created_at, last_active = :last_active
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update entity %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

// DeleteEntity removes an entity. Returns ErrNotFound if it does not exist.
func (db *DB) DeleteEntity(id string) error {
	res, err := db.conn.Exec("DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListEntities returns every stored entity, newest first.
func (db *DB) ListEntities() ([]agents.Entity, error) {
	var rows []entityRow
	if err := db.conn.Select(&rows, "SELECT * FROM entities ORDER BY created_at DESC, id"); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	out := make([]agents.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.entity()
		if err != nil {
			slog.Warn("skipping unreadable entity", "id", r.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveEntities writes entities in one transaction, inserting or replacing.
func (db *DB) SaveEntities(entities []agents.Entity) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entities {
		row, err := toRow(e)
		if err != nil {
			return fmt.Errorf("encode entity %s: %w", e.ID, err)
		}
		if _, err := tx.NamedExec(insertEntity+` ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, personality_json = excluded.personality_json,
			position_json = excluded.position_json, relationships_json = excluded.relationships_json,
			last_active = excluded.last_active`, row); err != nil {
			return fmt.Errorf("save entity %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// eventRow is the stored shape of an event.
type eventRow struct {
	Tick        uint64 `db:"tick"`
	Time        string `db:"time"`
	Category    string `db:"category"`
	EntityID    string `db:"entity_id"`
	Description string `db:"description"`
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, time, category, entity_id, description) VALUES (?, ?, ?, ?, ?)",
			e.Tick, e.Time.UTC().Format(timeLayout), e.Category, e.EntityID, e.Description,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, time, category, entity_id, description FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		t, _ := time.Parse(timeLayout, r.Time)
		events = append(events, engine.Event{
			Tick:        r.Tick,
			Time:        t,
			Category:    r.Category,
			EntityID:    r.EntityID,
			Description: r.Description,
		})
	}
	return events, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Returns ErrNotFound if the key is unset.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}

// SaveState performs a full save of the living population and pending events.
// Pending events stay queued for the next save if the population cannot be
// written.
func (db *DB) SaveState(sim *engine.Simulation) error {
	entities := sim.Behavior.Entities()
	slog.Info("saving ecosystem state", "entities", len(entities))

	if err := db.SaveEntities(entities); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	events := sim.DrainEvents()
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("ecosystem state saved", "events", len(events))
	return nil
}
