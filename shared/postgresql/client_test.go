package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "videogen",
		Password: "secret",
		Database: "videogen_db",
	}

	assert.Equal(t, "host=db.internal port=5432 user=videogen password=secret dbname=videogen_db sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

// recordingConnector is a database/sql connector that records executed statements
type recordingConnector struct {
	mu         sync.Mutex
	statements []string
	args       [][]driver.NamedValue
	committed  bool
}

func (r *recordingConnector) Connect(context.Context) (driver.Conn, error) {
	return &recordingConn{r: r}, nil
}

func (r *recordingConnector) Driver() driver.Driver { return recordingDriver{r: r} }

type recordingDriver struct {
	r *recordingConnector
}

func (d recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{r: d.r}, nil }

type recordingConn struct {
	r *recordingConnector
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare is not supported")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) { return recordingTx{r: c.r}, nil }

func (c *recordingConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.statements = append(c.r.statements, query)
	c.r.args = append(c.r.args, args)
	return driver.RowsAffected(0), nil
}

type recordingTx struct {
	r *recordingConnector
}

func (tx recordingTx) Commit() error {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()
	tx.r.committed = true
	return nil
}

func (tx recordingTx) Rollback() error { return nil }

func TestClient_ApplyMigrations(t *testing.T) {
	connector := &recordingConnector{}
	db := sqlx.NewDb(sql.OpenDB(connector), "postgres")
	t.Cleanup(func() { _ = db.Close() })

	client := &Client{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	migrations := fstest.MapFS{
		"002_add_index.sql":    {Data: []byte("CREATE INDEX IF NOT EXISTS idx ON t (c);")},
		"001_create_table.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS t (c int);")},
		"README.md":            {Data: []byte("not a migration")},
	}

	require.NoError(t, client.ApplyMigrations(context.Background(), migrations))

	require.Len(t, connector.statements, 3)
	assert.Equal(t, "SELECT pg_advisory_xact_lock($1)", connector.statements[0])
	require.Len(t, connector.args[0], 1)
	assert.Equal(t, migrationLockID, connector.args[0][0].Value)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (c int);", connector.statements[1])
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx ON t (c);", connector.statements[2])
	assert.True(t, connector.committed)
}
