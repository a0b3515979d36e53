package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// dialect hides the differences between PostGIS and the embedded SQLite store:
// table qualification, placeholders, and how envelopes are written and read.
type dialect struct {
	name   string
	driver string // database/sql driver name
	schema string
}

func newDialect(name, schema string) (dialect, error) {
	switch name {
	case DriverPostgres:
		if schema == "" {
			schema = "public"
		}
		return dialect{name: name, driver: "pgx", schema: schema}, nil
	case DriverSQLite:
		return dialect{name: name, driver: "sqlite"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

func (d dialect) postgres() bool { return d.name == DriverPostgres }

// table qualifies a table name with the schema.
func (d dialect) table(name string) string {
	if d.postgres() {
		return d.schema + "." + name
	}
	return name
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(query string) string {
	if !d.postgres() {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// geometryIn wraps a WKT placeholder for insertion into the envelope column.
func (d dialect) geometryIn() string {
	if d.postgres() {
		return "ST_GeomFromText(?, 4326)"
	}
	return "?"
}

// geometryOut selects the envelope column as WKT.
func (d dialect) geometryOut(col string) string {
	if d.postgres() {
		return "ST_AsText(" + col + ")"
	}
	return col
}
