package repository_test

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres runs every migration in lexical order as init scripts.
func startPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	migrations, err := filepath.Glob("../migrations/*.up.sql")
	if err != nil {
		return nil, "", fmt.Errorf("filepath.Glob: %w", err)
	}
	if len(migrations) == 0 {
		return nil, "", fmt.Errorf("no migrations found")
	}

	postgresContainer, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.BasicWaitStrategies(),
		postgres.WithInitScripts(migrations...),
		postgres.WithDatabase("cartsync"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("postgresContainer.ConnectionString: %w", err)
	}

	return postgresContainer, connStr, nil
}
