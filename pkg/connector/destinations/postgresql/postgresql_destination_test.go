package postgresql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL(t *testing.T) {
	schema := &core.Schema{Fields: []core.Field{
		{Name: "conversation_id", Type: core.FieldTypeString, Nullable: true},
		{Name: "size", Type: core.FieldTypeInt, Nullable: true},
		{Name: "received", Type: core.FieldTypeTimestamp},
		{Name: "raw", Type: core.FieldTypeJSON, Nullable: true},
	}}

	got := createTableSQL(pgx.Identifier{"landing", "mail"}, schema, []string{"conversation_id"})
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "landing"."mail" (`+
		`"conversation_id" TEXT NOT NULL, "size" BIGINT, "received" TIMESTAMPTZ NOT NULL, "raw" JSONB, `+
		`PRIMARY KEY ("conversation_id"))`, got)

	schema.Fields[1].Primary = true
	got = createTableSQL(pgx.Identifier{"public", "mail"}, schema, nil)
	assert.Contains(t, got, `"size" BIGINT NOT NULL`)
	assert.Contains(t, got, `PRIMARY KEY ("size")`)
}

func TestUpsertSQL(t *testing.T) {
	table := pgx.Identifier{"public", "contacts"}
	staging := pgx.Identifier{"nebula_upsert_contacts"}

	got := upsertSQL(table, staging, []string{"email", "name"}, []string{"email"})
	assert.Equal(t, `INSERT INTO "public"."contacts" ("email", "name") SELECT "email", "name" `+
		`FROM "nebula_upsert_contacts" ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`, got)

	got = upsertSQL(table, staging, []string{"email"}, []string{"email"})
	assert.Contains(t, got, "DO NOTHING")
}

func TestPGValue(t *testing.T) {
	subject := "Weekly report"
	tests := []struct {
		name string
		in   interface{}
		typ  core.FieldType
		want interface{}
	}{
		{"nil", nil, core.FieldTypeString, nil},
		{"nil pointer", (*string)(nil), core.FieldTypeString, nil},
		{"pointer", &subject, core.FieldTypeString, "Weekly report"},
		{"number as text", 42, core.FieldTypeString, "42"},
		{"json map", map[string]interface{}{"a": 1}, core.FieldTypeJSON, `{"a":1}`},
		{"json string", `["x"]`, core.FieldTypeJSON, `["x"]`},
		{"int", int64(7), core.FieldTypeInt, int64(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pgValue(tt.in, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamSource(t *testing.T) {
	ctx := context.Background()
	f := frame.New("mail", "mailbox", "size")
	f.Append(frame.Row{"mailbox": "ops@example.com", "size": 1})
	f.Append(frame.Row{"mailbox": "hr@example.com", "size": 2})

	src := newStreamSource(ctx, f.Stream(ctx, 1))
	first, ok := src.peek()
	require.True(t, ok)
	assert.Equal(t, "ops@example.com", first.Data["mailbox"])

	src.columns = []string{"mailbox", "size"}
	src.types = []core.FieldType{core.FieldTypeString, core.FieldTypeInt}

	var rows [][]interface{}
	for src.Next() {
		row, err := src.Values()
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.NoError(t, src.Err())
	assert.Equal(t, [][]interface{}{{"ops@example.com", 1}, {"hr@example.com", 2}}, rows)
	src.drain()
}

func TestStreamSourceError(t *testing.T) {
	records := make(chan *pool.Record, 2)
	errs := make(chan error, 1)
	records <- pool.NewRecord("mail", map[string]interface{}{"mailbox": "a"})
	records <- pool.NewRecord("mail", map[string]interface{}{"mailbox": "b"})
	close(records)
	errs <- errors.New(errors.ErrorTypeData, "page failed")
	close(errs)

	src := newStreamSource(context.Background(), &core.RecordStream{Records: records, Errors: errs})
	for src.Next() {
	}
	require.Error(t, src.Err())
	assert.True(t, errors.IsType(src.Err(), errors.ErrorTypeData))
	src.drain()
	_, open := <-records
	assert.False(t, open)
}

func TestNewPostgreSQLDestinationConfig(t *testing.T) {
	cfg := config.NewBaseConfig("mail_pg", "postgresql")
	_, err := NewPostgreSQLDestination("mail_pg", cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "missing connection string")

	cfg.Security.Credentials = map[string]string{"connection_string": "postgres://localhost/db"}
	_, err = NewPostgreSQLDestination("mail_pg", cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "missing table")

	cfg.Properties["table"] = "mail"
	cfg.Properties["if_exists"] = "upsert"
	_, err = NewPostgreSQLDestination("mail_pg", cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "upsert without keys")

	cfg.Properties["if_exists"] = "merge"
	_, err = NewPostgreSQLDestination("mail_pg", cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "unknown mode")

	cfg.Properties["if_exists"] = "Replace"
	d, err := NewPostgreSQLDestination("mail_pg", cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, d.mode)
	assert.Equal(t, pgx.Identifier{"public", "mail"}, d.table)

	err = d.Write(context.Background(), &core.RecordStream{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "write before initialize")
}

// TestPostgreSQLRoundTrip runs against a real server when NEBULA_TEST_POSTGRES_DSN is set.
func TestPostgreSQLRoundTrip(t *testing.T) {
	dsn := os.Getenv("NEBULA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NEBULA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	cfg := config.NewBaseConfig("mail_pg", "postgresql")
	cfg.Reliability.RetryAttempts = 1
	cfg.Security.Credentials = map[string]string{"connection_string": dsn}
	cfg.Properties["table"] = "nebula_test_mail"
	cfg.Properties["if_exists"] = "replace"

	d, err := NewPostgreSQLDestination("mail_pg", cfg)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(ctx, cfg))
	defer d.Close(ctx)

	f := frame.New("mail", "conversation_id", "subject")
	f.Append(frame.Row{"conversation_id": "c1", "subject": "hello"})
	f.Append(frame.Row{"conversation_id": "c2", "subject": nil})
	f.AddMetadata("Outlook", time.Now())

	require.NoError(t, d.CreateSchema(ctx, f.Schema()))
	require.NoError(t, d.Write(ctx, f.Stream(ctx, 2)))
	assert.Equal(t, int64(2), d.RecordsWritten())

	var count int
	require.NoError(t, d.pool.QueryRow(ctx, `SELECT count(*) FROM "public"."nebula_test_mail"`).Scan(&count))
	assert.Equal(t, 2, count)

	err = d.Upsert(ctx, []*pool.Record{
		pool.NewRecord("mail", map[string]interface{}{"conversation_id": "c1", "subject": "updated"}),
	}, []string{"conversation_id"})
	// The table has no unique constraint on conversation_id, so ON CONFLICT is rejected.
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}
