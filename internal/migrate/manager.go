// Package migrate applies the schema and bootstrap seeds shipped with the
// binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/obs"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	migrationsDir = "migrations"
	seedsDir      = "seeds"
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
)

//go:embed sql
var embedded embed.FS

// Embedded returns the schema bundled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager executes SQL files read from an fs.FS laid out as
// migrations/NNNN_name.up.sql, migrations/NNNN_name.down.sql and
// seeds/NNNN_name.sql. Each file runs in one transaction together with its
// bookkeeping row.
type Manager struct {
	db              *sql.DB
	files           fs.FS
	migrationsTable string
	seedsTable      string
}

type Option func(*Manager)

// WithMigrationsTable overrides the migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager constructs a Manager. A nil files uses Embedded().
func NewManager(db *sql.DB, files fs.FS, opts ...Option) *Manager {
	if files == nil {
		files = Embedded()
	}
	m := &Manager{
		db:              db,
		files:           files,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations in name order.
func (m *Manager) Up(ctx context.Context) error {
	pending, err := m.plan(ctx, m.migrationsTable, migrationsDir, upSuffix)
	if err != nil {
		return err
	}
	for _, f := range pending {
		record := fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, m.migrationsTable)
		if err := m.run(ctx, f.Path, record, f.Base, time.Now().UTC()); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Base, err)
		}
		obs.Logger().WithFields(logrus.Fields{"migration": f.Base}).Info("migration applied")
	}
	return nil
}

// Pending lists migrations not yet applied, in order.
func (m *Manager) Pending(ctx context.Context) ([]string, error) {
	pending, err := m.plan(ctx, m.migrationsTable, migrationsDir, upSuffix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pending))
	for _, f := range pending {
		names = append(names, f.Base)
	}
	return names, nil
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	down := path.Join(migrationsDir, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if _, err := fs.Stat(m.files, down); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	forget := fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable)
	if err := m.run(ctx, down, forget, last); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	obs.Logger().WithFields(logrus.Fields{"migration": last}).Info("migration rolled back")
	return nil
}

// Status returns applied migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at, name`, m.migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Seed applies seed files that have not run yet.
func (m *Manager) Seed(ctx context.Context) error {
	pending, err := m.plan(ctx, m.seedsTable, seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, f := range pending {
		record := fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, m.seedsTable)
		if err := m.run(ctx, f.Path, record, f.Base, time.Now().UTC()); err != nil {
			return fmt.Errorf("apply seed %s: %w", f.Base, err)
		}
		obs.Logger().WithFields(logrus.Fields{"seed": f.Base}).Info("seed applied")
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("bookkeeping table %s: %w", table, err)
		}
	}
	return nil
}

// plan returns the files under dir that table has no row for.
func (m *Manager) plan(ctx context.Context, table, dir, suffix string) ([]sqlFile, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	files, err := collectSQL(m.files, dir, suffix)
	if err != nil {
		return nil, err
	}
	pending := files[:0]
	for _, f := range files {
		if _, ok := done[f.Base]; !ok {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// run executes every statement of name and then the bookkeeping statement
// in a single transaction.
func (m *Manager) run(ctx context.Context, name, bookkeeping string, args ...any) error {
	raw, err := fs.ReadFile(m.files, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlFile struct {
	Base string
	Path string
}

func collectSQL(fsys fs.FS, dir, suffix string) ([]sqlFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []sqlFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		files = append(files, sqlFile{Base: e.Name(), Path: path.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings and
// "--" comments. Blank statements are dropped.
func splitStatements(src string) []string {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
		inLine   bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inLine:
			if r == '\n' {
				inLine = false
				cur.WriteRune(r)
			}
			continue
		case !inString && r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inLine = true
			i++
			continue
		case r == '\'':
			inString = !inString
		case r == ';' && !inString:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return stmts
}
