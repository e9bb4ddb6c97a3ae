// Package postgresql loads record streams into a PostgreSQL table with COPY.
//
// # Configuration
//
//	cfg := config.NewBaseConfig("mail_pg", "postgresql")
//	cfg.Security.Credentials["connection_string"] = "postgres://etl@db/warehouse"
//	cfg.Properties["table"] = "outlook_messages"
//	cfg.Properties["schema"] = "landing"        // default public
//	cfg.Properties["if_exists"] = "upsert"      // append | replace | fail | upsert
//	cfg.Properties["key_columns"] = "conversation_id,received_time"
//
// The table is created from the stream schema when missing. With upsert the
// rows are copied into a temporary table and merged with INSERT ... ON
// CONFLICT on the key columns, which become the primary key of a new table.
package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Mode decides what happens to an existing table.
type Mode string

const (
	ModeAppend  Mode = "append"
	ModeReplace Mode = "replace"
	ModeFail    Mode = "fail"
	ModeUpsert  Mode = "upsert"
)

const defaultMaxConns = 4

// PostgreSQLDestination copies records into one table.
type PostgreSQLDestination struct {
	*base.BaseConnector

	connString string
	table      pgx.Identifier
	mode       Mode
	keys       []string
	maxConns   int

	pool    *pgxpool.Pool
	schema  *core.Schema
	created bool
	written int64
}

// NewPostgreSQLDestination validates the table, mode and connection settings.
func NewPostgreSQLDestination(name string, cfg *config.BaseConfig) (*PostgreSQLDestination, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	d := &PostgreSQLDestination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		connString:    cfg.Security.Credentials["connection_string"],
		mode:          Mode(strings.ToLower(cfg.Property("if_exists", string(ModeAppend)))),
		keys:          cfg.ListProperty("key_columns", nil),
	}
	if d.connString == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection_string is required in security.credentials")
	}

	table := cfg.Property("table", "")
	if table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "table property is required")
	}
	d.table = pgx.Identifier{cfg.Property("schema", "public"), table}

	switch d.mode {
	case ModeAppend, ModeReplace, ModeFail:
	case ModeUpsert:
		if len(d.keys) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "key_columns is required for upsert")
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported if_exists value: %s", d.mode)
	}

	var err error
	if d.maxConns, err = cfg.IntProperty("max_connections", defaultMaxConns); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid max_connections property")
	}
	return d, nil
}

// Initialize opens the connection pool and checks the server answers.
func (d *PostgreSQLDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	poolConfig, err := pgxpool.ParseConfig(d.connString)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	if d.maxConns > 0 {
		poolConfig.MaxConns = int32(d.maxConns)
	}
	if t := cfg.Timeouts.Connection; t > 0 {
		poolConfig.ConnConfig.ConnectTimeout = t
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	d.pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}
	if err := d.ExecuteWithRetry(ctx, "ping", func() error { return d.ping(ctx) }); err != nil {
		d.pool.Close()
		d.pool = nil
		return err
	}

	d.SetHealthCheck(d.ping)
	d.UpdateHealth(true, map[string]interface{}{"table": d.table.Sanitize()})
	d.GetLogger().Info("PostgreSQL destination initialized",
		zap.String("table", d.table.Sanitize()),
		zap.String("if_exists", string(d.mode)),
		zap.Int32("max_connections", poolConfig.MaxConns))
	return nil
}

func (d *PostgreSQLDestination) ping(ctx context.Context) error {
	if d.pool == nil {
		return errors.New(errors.ErrorTypeConnection, "connection pool not initialized")
	}
	if err := d.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach PostgreSQL")
	}
	return nil
}

// CreateSchema applies the if_exists mode and creates the table when missing.
func (d *PostgreSQLDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	if schema == nil || len(schema.Fields) == 0 {
		return errors.New(errors.ErrorTypeValidation, "schema has no fields")
	}
	if d.pool == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	for _, k := range d.keys {
		if _, ok := schema.Field(k); !ok {
			return errors.Newf(errors.ErrorTypeConfig, "key column %q is not part of the schema", k)
		}
	}

	exists, err := d.tableExists(ctx)
	if err != nil {
		return err
	}
	switch {
	case exists && d.mode == ModeFail:
		return errors.Newf(errors.ErrorTypeConfig, "table %s already exists", d.table.Sanitize())
	case exists && d.mode == ModeReplace:
		if _, err := d.pool.Exec(ctx, "DROP TABLE "+d.table.Sanitize()); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to drop table")
		}
		exists = false
	}

	if !exists {
		ddl := createTableSQL(d.table, schema, d.keys)
		if _, err := d.pool.Exec(ctx, ddl); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to create table %s", d.table.Sanitize())
		}
		d.GetLogger().Info("table created", zap.String("table", d.table.Sanitize()))
	}
	d.schema = schema
	d.created = true
	return nil
}

func (d *PostgreSQLDestination) tableExists(ctx context.Context) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", d.table.Sanitize()).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to look up table")
	}
	return exists, nil
}

// Write copies the stream into the table inside one transaction. The stream
// is drained even when the copy fails.
func (d *PostgreSQLDestination) Write(ctx context.Context, stream *core.RecordStream) (err error) {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}
	if d.pool == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	ctx, span := d.StartSpan(ctx, "write")
	defer func() { span.End(err) }()

	src := newStreamSource(ctx, stream)
	defer src.drain()

	if !d.created {
		first, ok := src.peek()
		if !ok {
			return src.Err()
		}
		if err := d.CreateSchema(ctx, formats.InferSchema(d.table[1], first)); err != nil {
			return err
		}
	}
	src.columns = d.schema.FieldNames()
	src.types = fieldTypes(d.schema)

	n, err := d.copyWithMode(ctx, src, d.mode, d.keys)
	if err != nil {
		d.RecordCounter("records_written", 0, "failure")
		return err
	}

	d.written += n
	d.RecordCounter("records_written", float64(n))
	metrics.RowsWritten.WithLabelValues(d.Name()).Add(float64(n))
	span.SetAttribute("rows", n)
	d.GetLogger().Info("rows copied", zap.String("table", d.table.Sanitize()), zap.Int64("rows", n))
	return nil
}

// Upsert merges records on keys, independent of the configured mode.
func (d *PostgreSQLDestination) Upsert(ctx context.Context, records []*pool.Record, keys []string) error {
	if len(records) == 0 {
		return nil
	}
	if len(keys) == 0 {
		return errors.New(errors.ErrorTypeValidation, "upsert needs at least one key column")
	}
	if d.pool == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	if !d.created {
		if err := d.CreateSchema(ctx, formats.InferSchema(d.table[1], records[0])); err != nil {
			return err
		}
	}

	src := &streamSource{buffered: records, columns: d.schema.FieldNames(), types: fieldTypes(d.schema)}
	n, err := d.copyWithMode(ctx, src, ModeUpsert, keys)
	if err != nil {
		return err
	}
	d.written += n
	metrics.RowsWritten.WithLabelValues(d.Name()).Add(float64(n))
	return nil
}

func (d *PostgreSQLDestination) copyWithMode(ctx context.Context, src *streamSource, mode Mode, keys []string) (int64, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	target := d.table
	if mode == ModeUpsert {
		target = pgx.Identifier{"nebula_upsert_" + d.table[1]}
		ddl := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			target.Sanitize(), d.table.Sanitize())
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeQuery, "failed to create staging table")
		}
	}

	n, err := tx.CopyFrom(ctx, target, src.columns, src)
	if srcErr := src.Err(); srcErr != nil {
		return 0, srcErr
	}
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to copy rows into %s", target.Sanitize())
	}

	if mode == ModeUpsert {
		if _, err := tx.Exec(ctx, upsertSQL(d.table, target, src.columns, keys)); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeQuery, "failed to merge staged rows")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit")
	}
	return n, nil
}

// Close closes the connection pool.
func (d *PostgreSQLDestination) Close(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return d.BaseConnector.Close(ctx)
}

// RecordsWritten returns the rows committed by Write and Upsert.
func (d *PostgreSQLDestination) RecordsWritten() int64 {
	return d.written
}

var _ core.Upserter = (*PostgreSQLDestination)(nil)
