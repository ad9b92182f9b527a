package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/releaseplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// emptySnapshotFile creates the zero-length file the analysis service starts from.
func emptySnapshotFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := OpenSnapshot(emptySnapshotFile(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed writes an analysis the way the analysis service lays it out.
func seed(t *testing.T, s *Snapshot, a domain.Analysis) {
	t.Helper()
	ctx := context.Background()

	for _, story := range a.Stories {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO stories (story_id, developer) VALUES (?, ?)`, story.ID, story.Developer)
		require.NoError(t, err)
		pos, err := res.LastInsertId()
		require.NoError(t, err)

		for _, c := range story.Components {
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO story_components (story_position, component_type, component_name, developer) VALUES (?, ?, ?, ?)`,
				pos, c.Type, c.Name, c.Developer)
			require.NoError(t, err)
		}
	}
	for _, r := range a.EnforcementResults {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO enforcement_results (primary_story_id, status) VALUES (?, ?)`, r.PrimaryStoryID, string(r.Status))
		require.NoError(t, err)
	}
	for _, c := range a.Conflicts {
		for _, id := range c.StoryIDs {
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO component_conflicts (component_type, component_name, story_id) VALUES (?, ?, ?)`,
				c.Component.Type, c.Component.Name, id)
			require.NoError(t, err)
		}
	}
}

// =============================================================================
// Snapshot Tests
// =============================================================================

func TestOpenSnapshot_MigrationsAreIdempotent(t *testing.T) {
	path := emptySnapshotFile(t)

	first, err := OpenSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenSnapshot_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.db")

	s, err := OpenSnapshot(path)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNotFound)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "OpenSnapshot", srcErr.Op)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "snapshot file must not be created")
}

func TestOpenSnapshot_MissingFileURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.db")

	_, err := OpenSnapshot("file:" + path + "?cache=shared")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSnapshot_KeepsExistingQuery(t *testing.T) {
	path := emptySnapshotFile(t)

	s, err := OpenSnapshot("file:" + path + "?cache=private")
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, a.Stories)
}

func TestOpenSnapshot_ReadOnly(t *testing.T) {
	path := emptySnapshotFile(t)
	rw, err := OpenSnapshot(path)
	require.NoError(t, err)
	seed(t, rw, domain.Analysis{Stories: []domain.Story{{ID: "US-1"}, {ID: "US-2"}}})
	require.NoError(t, rw.Close())

	for _, dsn := range []string{"file:" + path + "?mode=ro", "file:" + path + "?immutable=1"} {
		t.Run(dsn, func(t *testing.T) {
			s, err := OpenSnapshot(dsn)
			require.NoError(t, err)
			defer s.Close()

			a, err := s.Load(context.Background())
			require.NoError(t, err)
			require.Len(t, a.Stories, 2)
			assert.Equal(t, "US-1", a.Stories[0].ID)
		})
	}
}

func TestOpenSnapshot_ReadOnlyWithoutSchema(t *testing.T) {
	path := emptySnapshotFile(t)

	_, err := OpenSnapshot("file:" + path + "?mode=ro")
	assert.ErrorIs(t, err, ErrMigrationFailed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "read-only snapshot must not be written")
}

func TestSnapshotPath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"analysis.db", "analysis.db"},
		{"analysis.db?_busy_timeout=100", "analysis.db"},
		{"file:analysis.db?mode=ro", "analysis.db"},
		{"file:///tmp/analysis.db", "/tmp/analysis.db"},
		{"file:my%20snapshot.db", "my snapshot.db"},
		{":memory:", ""},
		{"file::memory:?cache=shared", ""},
		{"file:mem?mode=memory", ""},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotPath(tt.dsn))
		})
	}
}

func TestWithParam(t *testing.T) {
	assert.Equal(t, "a.db?_foreign_keys=on", withParam("a.db", "_foreign_keys=on"))
	assert.Equal(t, "file:a.db?mode=ro&_foreign_keys=on", withParam("file:a.db?mode=ro", "_foreign_keys=on"))
}

func TestOpenSnapshot_InMemory(t *testing.T) {
	s, err := OpenSnapshot(":memory:")
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, a.Stories)
}

func TestSnapshot_LoadEmpty(t *testing.T) {
	s := testSnapshot(t)

	a, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, a.Stories)
	assert.Empty(t, a.EnforcementResults)
	assert.Empty(t, a.Conflicts)
}

func TestSnapshot_LoadPreservesOrderAndDuplicates(t *testing.T) {
	s := testSnapshot(t)
	seed(t, s, domain.Analysis{
		Stories: []domain.Story{
			{ID: "US-0033600", Developer: "ana", Components: []domain.Component{{Type: "ApexClass", Name: "AccountService"}}},
			{ID: "US-0033553"},
			{ID: "US-0033553", Developer: "ben", Components: []domain.Component{
				{Type: "Flow", Name: "Lead_Router", Developer: "cho"},
				{Type: "Layout", Name: "Account"},
			}},
		},
		EnforcementResults: []domain.EnforcementResult{
			{PrimaryStoryID: "US-0033600", Status: domain.EnforcementBehindProd},
		},
	})

	a, err := s.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, a.Stories, 3)
	assert.Equal(t, "US-0033600", a.Stories[0].ID)
	assert.Equal(t, "ana", a.Stories[0].Developer)
	assert.Len(t, a.Stories[0].Components, 1)
	assert.Equal(t, "US-0033553", a.Stories[1].ID)
	assert.Empty(t, a.Stories[1].Components)
	assert.Equal(t, "ben", a.Stories[2].Developer)
	assert.Equal(t, []domain.Component{
		{Type: "Flow", Name: "Lead_Router", Developer: "cho"},
		{Type: "Layout", Name: "Account"},
	}, a.Stories[2].Components)

	require.Len(t, a.EnforcementResults, 1)
	assert.True(t, a.EnforcementResults[0].IsBehindProd())
}

func TestSnapshot_LoadGroupsConflictsByComponent(t *testing.T) {
	s := testSnapshot(t)
	seed(t, s, domain.Analysis{
		Conflicts: []domain.ComponentConflict{
			{Component: domain.Component{Type: "ApexClass", Name: "Billing"}, StoryIDs: []string{"US-1", "US-2"}},
			{Component: domain.Component{Type: "Flow", Name: "Lead_Router"}, StoryIDs: []string{"US-3", "US-1"}},
		},
	})

	a, err := s.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, a.Conflicts, 2)
	assert.Equal(t, "Billing", a.Conflicts[0].Component.Name)
	assert.Equal(t, []string{"US-1", "US-2"}, a.Conflicts[0].StoryIDs)
	assert.Equal(t, []string{"US-3", "US-1"}, a.Conflicts[1].StoryIDs)
	assert.Equal(t, 3, a.ConflictIndex().Len())
}

func TestSnapshot_LoadCancelledContext(t *testing.T) {
	s := testSnapshot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrQueryFailed)
}
