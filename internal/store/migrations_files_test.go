package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveUpAndDownSections(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.sql$`)

	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		dir := migrationsDir(dialect)
		entries, err := fs.ReadDir(migrationsFS, dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		if len(entries) == 0 {
			t.Fatalf("no migrations discovered in %s", dir)
		}

		seen := map[string]bool{}
		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				t.Fatalf("unexpected migration file name %s/%s", dir, entry.Name())
			}
			if seen[match[1]] {
				t.Fatalf("duplicate migration version %s in %s", match[1], dir)
			}
			seen[match[1]] = true

			raw, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
			if err != nil {
				t.Fatalf("read %s: %v", entry.Name(), err)
			}
			body := string(raw)
			if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
				t.Fatalf("%s/%s must contain goose Up and Down sections", dir, entry.Name())
			}
		}
	}
}

func TestMigrationSetsHaveSameVersions(t *testing.T) {
	versions := func(dialect Dialect) []string {
		entries, err := fs.ReadDir(migrationsFS, migrationsDir(dialect))
		if err != nil {
			t.Fatalf("read migrations: %v", err)
		}
		out := make([]string, 0, len(entries))
		for _, entry := range entries {
			out = append(out, strings.SplitN(entry.Name(), "_", 2)[0])
		}
		return out
	}

	local := versions(DialectSQLite)
	remote := versions(DialectPostgres)
	if strings.Join(local, ",") != strings.Join(remote, ",") {
		t.Fatalf("sqlite versions %v differ from postgres versions %v", local, remote)
	}
}
