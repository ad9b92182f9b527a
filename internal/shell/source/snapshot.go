package source

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/artpar/releaseplan/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot reads an analysis from a SQLite snapshot written by the analysis service.
// Row order is preserved: stories, results and conflicts come back in insertion order.
type Snapshot struct {
	db  *sqlx.DB
	dsn string
}

// OpenSnapshot opens an existing SQLite snapshot. Writable snapshots are
// migrated to the current schema; read-only ones (mode=ro or immutable=1) must
// already be at the current schema version.
func OpenSnapshot(dsn string) (*Snapshot, error) {
	if path := snapshotPath(dsn); path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, NewSourceError("OpenSnapshot", dsn, "snapshot does not exist", ErrNotFound)
		}
	}

	db, err := sqlx.Open("sqlite3", withParam(dsn, "_foreign_keys=on"))
	if err != nil {
		return nil, NewSourceError("OpenSnapshot", dsn, "failed to open database", ErrConnectionFailed)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewSourceError("OpenSnapshot", dsn, "failed to ping database", ErrConnectionFailed)
	}

	if readOnly(dsn) {
		err = checkSchemaVersion(db)
	} else {
		err = runMigrations(db.DB)
	}
	if err != nil {
		db.Close()
		return nil, NewSourceError("OpenSnapshot", dsn, err.Error(), ErrMigrationFailed)
	}

	return &Snapshot{db: db, dsn: dsn}, nil
}

// snapshotPath returns the file a DSN points at, or "" for in-memory databases.
func snapshotPath(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")
	if rest, ok := strings.CutPrefix(path, "file:"); ok {
		path = rest
		if strings.HasPrefix(path, "///") {
			path = path[2:]
		}
		if unescaped, err := url.PathUnescape(path); err == nil {
			path = unescaped
		}
	}
	params, _ := url.ParseQuery(query)
	if path == "" || path == ":memory:" || params.Get("mode") == "memory" {
		return ""
	}
	return path
}

// withParam appends a query parameter, keeping any the DSN already carries.
func withParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func readOnly(dsn string) bool {
	_, query, _ := strings.Cut(dsn, "?")
	params, _ := url.ParseQuery(query)
	return params.Get("mode") == "ro" || params.Get("immutable") == "1"
}

// checkSchemaVersion verifies a snapshot without writing to it.
func checkSchemaVersion(db *sqlx.DB) error {
	want, err := latestMigration()
	if err != nil {
		return err
	}

	var row struct {
		Version uint `db:"version"`
		Dirty   bool `db:"dirty"`
	}
	if err := db.Get(&row, `SELECT version, dirty FROM schema_migrations LIMIT 1`); err != nil {
		return fmt.Errorf("snapshot has no schema version: %w", err)
	}
	if row.Dirty {
		return fmt.Errorf("snapshot schema version %d is dirty", row.Version)
	}
	if row.Version != want {
		return fmt.Errorf("snapshot schema version %d, want %d", row.Version, want)
	}
	return nil
}

func latestMigration() (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to create migration source: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migrations: %w", err)
		}
		version = next
	}
}

// runMigrations applies the embedded snapshot schema.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// =============================================================================
// Rows
// =============================================================================

type storyRow struct {
	Position  int64  `db:"position"`
	StoryID   string `db:"story_id"`
	Developer string `db:"developer"`
}

type componentRow struct {
	StoryPosition int64  `db:"story_position"`
	Type          string `db:"component_type"`
	Name          string `db:"component_name"`
	Developer     string `db:"developer"`
}

type enforcementRow struct {
	PrimaryStoryID string `db:"primary_story_id"`
	Status         string `db:"status"`
}

type conflictRow struct {
	Type    string `db:"component_type"`
	Name    string `db:"component_name"`
	StoryID string `db:"story_id"`
}

// =============================================================================
// Loading
// =============================================================================

// Load reads the whole snapshot into an analysis.
func (s *Snapshot) Load(ctx context.Context) (domain.Analysis, error) {
	var a domain.Analysis

	stories, err := s.loadStories(ctx)
	if err != nil {
		return a, err
	}
	a.Stories = stories

	var results []enforcementRow
	if err := s.db.SelectContext(ctx, &results,
		`SELECT primary_story_id, status FROM enforcement_results ORDER BY id`); err != nil {
		return a, NewSourceError("Load", s.dsn, "failed to read enforcement results: "+err.Error(), ErrQueryFailed)
	}
	for _, r := range results {
		a.EnforcementResults = append(a.EnforcementResults, domain.EnforcementResult{
			PrimaryStoryID: r.PrimaryStoryID,
			Status:         domain.EnforcementStatus(r.Status),
		})
	}

	conflicts, err := s.loadConflicts(ctx)
	if err != nil {
		return a, err
	}
	a.Conflicts = conflicts

	return a, nil
}

func (s *Snapshot) loadStories(ctx context.Context) ([]domain.Story, error) {
	var rows []storyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT position, story_id, developer FROM stories ORDER BY position`); err != nil {
		return nil, NewSourceError("Load", s.dsn, "failed to read stories: "+err.Error(), ErrQueryFailed)
	}

	var components []componentRow
	if err := s.db.SelectContext(ctx, &components,
		`SELECT story_position, component_type, component_name, developer FROM story_components ORDER BY id`); err != nil {
		return nil, NewSourceError("Load", s.dsn, "failed to read components: "+err.Error(), ErrQueryFailed)
	}

	byStory := make(map[int64][]domain.Component)
	for _, c := range components {
		byStory[c.StoryPosition] = append(byStory[c.StoryPosition], domain.Component{
			Type:      c.Type,
			Name:      c.Name,
			Developer: c.Developer,
		})
	}

	stories := make([]domain.Story, 0, len(rows))
	for _, r := range rows {
		stories = append(stories, domain.Story{
			ID:         r.StoryID,
			Developer:  r.Developer,
			Components: byStory[r.Position],
		})
	}
	return stories, nil
}

// loadConflicts groups conflict rows by component, in order of first appearance.
func (s *Snapshot) loadConflicts(ctx context.Context) ([]domain.ComponentConflict, error) {
	var rows []conflictRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT component_type, component_name, story_id FROM component_conflicts ORDER BY id`); err != nil {
		return nil, NewSourceError("Load", s.dsn, "failed to read conflicts: "+err.Error(), ErrQueryFailed)
	}

	var conflicts []domain.ComponentConflict
	index := make(map[domain.Component]int)
	for _, r := range rows {
		key := domain.Component{Type: r.Type, Name: r.Name}
		i, ok := index[key]
		if !ok {
			i = len(conflicts)
			index[key] = i
			conflicts = append(conflicts, domain.ComponentConflict{Component: key})
		}
		conflicts[i].StoryIDs = append(conflicts[i].StoryIDs, r.StoryID)
	}
	return conflicts, nil
}
