package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// columnTypes maps the column names of table to their declared type.
func columnTypes(t *testing.T, db *sql.DB, table string) map[string]string {
	t.Helper()
	rows, err := db.Query(`SELECT name, type FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		cols[name] = typ
	}
	require.NoError(t, rows.Err())
	return cols
}

func postsModel() *domain.Model {
	return &domain.Model{
		Name:           "posts",
		TableName:      "posts",
		HasTimestamps:  true,
		HasSoftDeletes: true,
		Fields: []domain.Field{
			{Name: "title", Type: domain.TypeString},
			{Name: "active", Type: domain.TypeBoolean},
			{Name: "score", Type: domain.TypeFloat},
			{Name: "meta", Type: domain.TypeJSON},
		},
	}
}

func TestCreateTableSQL(t *testing.T) {
	want := "CREATE TABLE IF NOT EXISTS \"posts\" (\n" +
		"\t\"id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
		"\t\"title\" TEXT,\n" +
		"\t\"active\" INTEGER,\n" +
		"\t\"score\" REAL,\n" +
		"\t\"meta\" TEXT,\n" +
		"\t\"created_at\" TEXT,\n" +
		"\t\"updated_at\" TEXT,\n" +
		"\t\"deleted_at\" TEXT\n);"
	assert.Equal(t, want, CreateTableSQL(postsModel()))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"posts"`, QuoteIdent("posts"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	model := postsModel()

	assert.Empty(t, columnTypes(t, db, "posts"))

	require.NoError(t, EnsureTable(ctx, db, model))
	require.NoError(t, EnsureTable(ctx, db, model), "creating twice is a no-op")

	assert.Equal(t, "INTEGER", columnTypes(t, db, "posts")["active"])
	exists, err := TableExists(ctx, db, "posts")
	require.NoError(t, err)
	assert.True(t, exists)

	rec := record.New()
	rec.Set("title", record.String("hello"))
	rec.Set("active", record.Bool(true))
	rec.Set("score", record.Float(2.5))
	rec.Set("meta", record.JSON{Raw: `{"a":1}`})
	id, err := InsertRecord(ctx, db, "posts", rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := FindRecord(ctx, db, model, id, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID())
	active, _ := got.Get("active")
	assert.Equal(t, record.Bool(true), active)
	score, _ := got.Get("score")
	assert.Equal(t, record.Float(2.5), score)
	meta, _ := got.Get("meta")
	assert.Equal(t, record.JSON{Raw: `{"a":1}`}, meta)

	patch := record.New()
	patch.Set("title", record.String("changed"))
	require.NoError(t, UpdateRecord(ctx, db, "posts", id, patch))
	assert.ErrorIs(t, UpdateRecord(ctx, db, "posts", 99, patch), ErrRecordNotFound)

	require.NoError(t, SoftDeleteRecord(ctx, db, "posts", id, "2024-01-01 00:00:00", true))
	_, err = FindRecord(ctx, db, model, id, false)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	trashed, err := FindRecord(ctx, db, model, id, true)
	require.NoError(t, err)
	deletedAt, _ := trashed.Get("deleted_at")
	assert.Equal(t, "2024-01-01 00:00:00", deletedAt.String())

	require.NoError(t, RestoreRecord(ctx, db, "posts", id, "2024-01-02 00:00:00", true))
	restored, err := FindRecord(ctx, db, model, id, false)
	require.NoError(t, err)
	title, _ := restored.Get("title")
	assert.Equal(t, record.String("changed"), title)

	total, err := CountRecords(ctx, db, `SELECT COUNT(*) FROM "posts"`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	require.NoError(t, DeleteRecord(ctx, db, "posts", id))
	assert.ErrorIs(t, DeleteRecord(ctx, db, "posts", id), ErrRecordNotFound)
}

func TestInsertIntoMissingTable(t *testing.T) {
	rec := record.New()
	rec.Set("title", record.String("x"))
	_, err := InsertRecord(context.Background(), testDB(t), "nope", rec)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestUniquenessChecker(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, EnsureTable(ctx, db, postsModel()))

	rec := record.New()
	rec.Set("title", record.String("taken"))
	id, err := InsertRecord(ctx, db, "posts", rec)
	require.NoError(t, err)

	checker := UniquenessChecker{DB: db}
	exists, err := checker.ValueExists(ctx, "posts", "title", "taken", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = checker.ValueExists(ctx, "posts", "title", "taken", id)
	require.NoError(t, err)
	assert.False(t, exists, "the current row is excluded")

	exists, err = checker.ValueExists(ctx, "posts", "title", "free", 0)
	require.NoError(t, err)
	assert.False(t, exists)
}
