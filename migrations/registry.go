// Package migrations catalogs the integrations schema and hands the embedded
// SQL for one dialect to a migration runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SourceLabel names this module's migrations inside a shared runner.
const SourceLabel = "go-integrations"

const migrationsDir = "data/sql/migrations"

// Migration is one versioned step of the schema and the tables it creates.
type Migration struct {
	Version string
	Name    string
	Tables  []string
}

func (m Migration) Up() string   { return m.Version + "_" + m.Name + ".up.sql" }
func (m Migration) Down() string { return m.Version + "_" + m.Name + ".down.sql" }

var schema = []Migration{
	{
		Version: "00001",
		Name:    "integrations_core_schema",
		Tables:  []string{"integration_credentials", "integration_states"},
	},
	{
		Version: "00002",
		Name:    "integrations_events_and_webhooks",
		Tables:  []string{"integration_events", "integration_webhook_deliveries"},
	},
}

// Schema returns the migrations in apply order.
func Schema() []Migration {
	out := make([]Migration, 0, len(schema))
	for _, m := range schema {
		m.Tables = append([]string(nil), m.Tables...)
		out = append(out, m)
	}
	return out
}

// Tables lists every table the schema creates, in apply order.
func Tables() []string {
	var tables []string
	for _, m := range schema {
		tables = append(tables, m.Tables...)
	}
	return tables
}

// Source returns the validated migration filesystem for dialect.
func Source(dialect string) (fs.FS, error) {
	return source(integrations.GetMigrationsFS(), dialect)
}

func source(root fs.FS, dialect string) (fs.FS, error) {
	dir := migrationsDir
	switch normalizeDialect(dialect) {
	case DialectPostgres:
	case DialectSQLite:
		dir = path.Join(migrationsDir, DialectSQLite)
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	if err := Validate(sub); err != nil {
		return nil, fmt.Errorf("migrations: %s: %w", normalizeDialect(dialect), err)
	}
	return sub, nil
}

// Validate checks that fsys holds a non-empty up and down file for every
// schema step and no other SQL files.
func Validate(fsys fs.FS) error {
	expected := map[string]struct{}{}
	for _, m := range schema {
		for _, name := range []string{m.Up(), m.Down()} {
			expected[name] = struct{}{}
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("missing %s: %w", name, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				return fmt.Errorf("%s is empty", name)
			}
		}
	}
	found, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	var unknown []string
	for _, name := range found {
		if _, ok := expected[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unexpected migration files %v", unknown)
	}
	return nil
}

// RegisterFunc receives one dialect's filesystem, usually a persistence
// client's SQL migration registrar.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Register validates and hands the filesystem of each dialect to registerFn.
// No dialects means both.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	seen := map[string]struct{}{}
	for _, dialect := range dialects {
		dialect = normalizeDialect(dialect)
		if _, ok := seen[dialect]; ok {
			continue
		}
		seen[dialect] = struct{}{}
		fsys, err := Source(dialect)
		if err != nil {
			return err
		}
		if err := registerFn(ctx, dialect, SourceLabel, fsys); err != nil {
			return fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return nil
}

func normalizeDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return strings.ToLower(strings.TrimSpace(dialect))
	}
}
