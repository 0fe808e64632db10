package store

import "time"

// Dialect isolates the runtime differences between sqlite and postgres:
// which statement/migration directory to load and how times are bound and
// scanned. Placeholder syntax (? vs $n) lives in the per-dialect statement
// files under sql/<name>/; both sets use the same portable ON CONFLICT form.
type Dialect interface {
	// Name identifies the sql/<name> and migrations/<name> directories.
	Name() string
	// FormatTime renders a time.Time the way this dialect's driver expects
	// it bound as a parameter.
	FormatTime(t time.Time) any
	// ParseTime converts a scanned column value back into a time.Time.
	ParseTime(v any) (time.Time, error)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) FormatTime(t time.Time) any {
	return t.UTC().Format(time.RFC3339Nano)
}

func (sqliteDialect) ParseTime(v any) (time.Time, error) {
	return parseTimeValue(v)
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) FormatTime(t time.Time) any {
	return t.UTC()
}

func (postgresDialect) ParseTime(v any) (time.Time, error) {
	return parseTimeValue(v)
}

func parseTimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, errUnsupportedTimeValue
	}
}
