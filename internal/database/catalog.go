// Package database resolves which databases a run backs up, either from a
// configured list or from the live server catalog.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// WildcardAll selects every non-system database on the server.
const WildcardAll = "ALL"

// systemSchemas are never backed up, even under the ALL wildcard.
var systemSchemas = map[string]struct{}{
	"information_schema": {},
	"performance_schema": {},
	"sys":                {},
	"mysql":              {},
}

// Target is one database selected for backup in a run.
type Target struct {
	Name string
}

// Lister enumerates the databases present on a server.
type Lister interface {
	ListDatabases(ctx context.Context) ([]string, error)
}

// Catalog queries a live MySQL server for its database list.
type Catalog struct {
	Host     string
	Port     string
	Username string
	Password string
}

// ListDatabases opens a short-lived connection and returns every database
// name the configured user can see, in server order.
func (c *Catalog) ListDatabases(ctx context.Context) ([]string, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/", c.Username, c.Password, c.Host, c.Port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog connection: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return names, nil
}

// ResolveTargets turns the configured database selection into the run's
// target list: either the ALL wildcard, resolved against the live catalog
// with system schemas excluded, or a comma-separated list of names taken
// verbatim. The result order is the enumeration order and fixes the
// processing order of the run.
func ResolveTargets(ctx context.Context, configured string, catalog Lister) ([]Target, error) {
	if strings.TrimSpace(configured) == WildcardAll {
		names, err := catalog.ListDatabases(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", WildcardAll, err)
		}
		var targets []Target
		for _, name := range names {
			if _, reserved := systemSchemas[name]; reserved {
				continue
			}
			targets = append(targets, Target{Name: name})
		}
		return targets, nil
	}

	var targets []Target
	for _, name := range strings.Split(configured, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		targets = append(targets, Target{Name: name})
	}
	return targets, nil
}
