package store

import (
	"embed"
	"fmt"
)

//go:embed sql/sqlite/*.sql
var sqliteStatements embed.FS

//go:embed sql/postgres/*.sql
var postgresStatements embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// statement loads the named SQL template for the given dialect. Names match
// the file stem under sql/<dialect>/<name>.sql.
func statement(dialectName, name string) (string, error) {
	var fsys embed.FS
	switch dialectName {
	case "sqlite":
		fsys = sqliteStatements
	case "postgres":
		fsys = postgresStatements
	default:
		return "", fmt.Errorf("store: unknown dialect %q", dialectName)
	}
	b, err := fsys.ReadFile(fmt.Sprintf("sql/%s/%s.sql", dialectName, name))
	if err != nil {
		return "", fmt.Errorf("store: load statement %q: %w", name, err)
	}
	return string(b), nil
}
