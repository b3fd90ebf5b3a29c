// Package migrations embeds and applies the Postgres and ClickHouse schemas.
//
// Files are named NNN_description.sql and applied in lexical order.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schema embed.FS

const (
	dialectPostgres   = "postgres"
	dialectClickhouse = "clickhouse"
)

// migration is one embedded schema file.
type migration struct {
	Name string
	SQL  string
}

// load returns the non-empty migrations of a dialect in apply order.
func load(dialect string) ([]migration, error) {
	entries, err := fs.ReadDir(schema, dialect)
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dialect, err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(schema, path.Join(dialect, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, migration{Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
