package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslnv/leaddesk/pkg/config"
)

func TestRebind(t *testing.T) {
	pg := &DB{dialect: Postgres}
	assert.Equal(t, "SELECT * FROM leads WHERE id = $1 AND status = $2", pg.Rebind("SELECT * FROM leads WHERE id = ? AND status = ?"))
	assert.Equal(t, "SELECT '?' FROM leads WHERE id = $1", pg.Rebind("SELECT '?' FROM leads WHERE id = ?"))

	lite := &DB{dialect: SQLite}
	assert.Equal(t, "SELECT ? FROM leads", lite.Rebind("SELECT ? FROM leads"))
}

func TestDialectHelpers(t *testing.T) {
	assert.Equal(t, "ILIKE", (&DB{dialect: Postgres}).Like())
	assert.Equal(t, "LIKE", (&DB{dialect: MySQL}).Like())
	assert.Equal(t, "substr(created_at, 1, 10)", (&DB{dialect: SQLite}).DayExpr("created_at"))
	assert.Contains(t, (&DB{dialect: MySQL}).DayExpr("created_at"), "DATE_FORMAT")
	assert.Equal(t, "?, ?, ?", Placeholders(3))
	assert.Equal(t, "", Placeholders(0))
}

func TestDriverFor(t *testing.T) {
	driver, dsn, err := driverFor(config.Database{Driver: SQLite, DSN: "file:test.db?cache=shared"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "file:test.db?cache=shared&_time_format=sqlite", dsn)

	_, dsn, err = driverFor(config.Database{Driver: MySQL, DSN: "user:pw@tcp(localhost:3306)/leaddesk"})
	require.NoError(t, err)
	assert.Equal(t, "user:pw@tcp(localhost:3306)/leaddesk?parseTime=true", dsn)

	_, _, err = driverFor(config.Database{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenInMemoryAndMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, SQLite, db.Dialect())

	// Idempotent
	require.NoError(t, db.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	id, err := db.InsertID(ctx,
		`INSERT INTO leads (name, email, work_type, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"Ann", "ann@example.com", "Thesis", "Need help", "new", now, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	var createdAt time.Time
	require.NoError(t, db.QueryRowContext(ctx, `SELECT created_at FROM leads WHERE id = ?`, id).Scan(&createdAt))
	assert.True(t, now.Equal(createdAt), "got %v", createdAt)

	var day string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT `+db.DayExpr("created_at")+` FROM leads WHERE id = ?`, id).Scan(&day))
	assert.Equal(t, now.Format("2006-01-02"), day)

	for _, table := range []string{"admin_users", "leads", "audit_logs"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n), table)
	}
}

func TestMySQLIndexesInlined(t *testing.T) {
	stmt := mysqlIndexes("CREATE TABLE IF NOT EXISTS leads (\n\t\tid BIGINT\n\t)")
	assert.Contains(t, stmt, "INDEX idx_leads_status (status)")
	assert.Contains(t, stmt, "INDEX idx_leads_work_type (work_type)")

	same := "CREATE TABLE IF NOT EXISTS admin_users (id BIGINT)"
	assert.Equal(t, same, mysqlIndexes(same))
}
