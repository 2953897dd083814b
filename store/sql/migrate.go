package sqlstore

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/goliatone/go-integrations/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect"
)

// RegisterMigrations adds the integrations schema for the client's dialect
// to its migration set. Call client.Migrate afterwards, or use Migrate.
func RegisterMigrations(ctx context.Context, client *persistence.Client) error {
	if client == nil || client.DB() == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	name, err := migrationDialect(client.DB().Dialect().Name())
	if err != nil {
		return err
	}
	return migrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, name)
}

// Migrate registers the integrations schema and applies pending migrations.
func Migrate(ctx context.Context, client *persistence.Client) error {
	if err := RegisterMigrations(ctx, client); err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func migrationDialect(name dialect.Name) (string, error) {
	switch name {
	case dialect.PG:
		return migrations.DialectPostgres, nil
	case dialect.SQLite:
		return migrations.DialectSQLite, nil
	default:
		return "", fmt.Errorf("sqlstore: no migrations for dialect %s", name)
	}
}
