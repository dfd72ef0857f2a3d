// Package sqlite stores rule records in a SQLite database via mattn/go-sqlite3
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
	logger logging.Logger
}

var _ storage.Store = (*Adapter)(nil)

func NewAdapter(config *Config, logger logging.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
		logger: logger.WithFields(logging.Component("sqlite_store")),
	}

	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			context TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			site_restriction TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (context, id)
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			context TEXT NOT NULL,
			id TEXT NOT NULL,
			folder_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT 'inbound',
			position INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (context, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_context_direction ON rules(context, direction)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			anchor TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

const selectRule = `SELECT r.id, r.kind, r.body, COALESCE(f.site_restriction, '')
	FROM rules r
	LEFT JOIN folders f ON f.context = r.context AND f.id = r.folder_id`

func (a *Adapter) LoadAll(ctx context.Context, contextName string, direction rules.Direction) ([]rules.RuleDefinition, error) {
	rows, err := a.db.QueryContext(ctx, selectRule+`
		WHERE r.context = ? AND r.direction = ?
		ORDER BY COALESCE(f.position, 0), r.folder_id, r.position, r.id`,
		contextName, string(direction))
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	var defs []rules.RuleDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if stderrors.Is(err, storage.ErrMalformedRecord) {
			a.logger.Warn("Skipping malformed rule record",
				logging.RuleContext(contextName),
				logging.RuleID(def.ID),
				logging.Err(err),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (a *Adapter) LoadOne(ctx context.Context, contextName, id string) (*rules.RuleDefinition, error) {
	row := a.db.QueryRowContext(ctx, selectRule+` WHERE r.context = ? AND r.id = ?`, contextName, id)
	def, err := scanDefinition(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDefinition reads one rule row. On a decode failure the returned
// definition carries only the row id.
func scanDefinition(s scanner) (rules.RuleDefinition, error) {
	var id, kind, body, site string
	if err := s.Scan(&id, &kind, &body, &site); err != nil {
		return rules.RuleDefinition{}, err
	}
	rec, err := storage.DecodeRecord(storage.RecordKind(kind), []byte(body))
	if err != nil {
		return rules.RuleDefinition{ID: id}, err
	}
	return rec.Definition(&storage.Folder{SiteRestriction: site}), nil
}

func (a *Adapter) Resolve(ctx context.Context, itemID string) (string, string, error) {
	var url, anchor string
	err := a.db.QueryRowContext(ctx, `SELECT url, anchor FROM items WHERE id = ?`, itemID).Scan(&url, &anchor)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", "", storage.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve item: %w", err)
	}
	return url, anchor, nil
}

func (a *Adapter) Contexts(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT context FROM folders UNION SELECT context FROM rules ORDER BY 1`)
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

// SaveRule inserts or replaces a rule. A new rule without a position goes
// last in its context; an existing rule keeps its position unless one is given.
func (a *Adapter) SaveRule(ctx context.Context, record storage.RuleRecord) error {
	if err := record.Normalize(); err != nil {
		return err
	}
	body, err := record.Body()
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	position := record.Position
	if position <= 0 {
		err := tx.QueryRowContext(ctx, `SELECT position FROM rules WHERE context = ? AND id = ?`,
			record.Context, record.ID()).Scan(&position)
		if stderrors.Is(err, sql.ErrNoRows) {
			err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM rules WHERE context = ?`,
				record.Context).Scan(&position)
		}
		if err != nil {
			return fmt.Errorf("failed to determine rule position: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (context, id, folder_id, kind, direction, position, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(context, id) DO UPDATE SET
			folder_id = excluded.folder_id,
			kind = excluded.kind,
			direction = excluded.direction,
			position = excluded.position,
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP`,
		record.Context, record.ID(), record.FolderID, string(record.Kind()), string(record.Direction()), position, string(body))
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return tx.Commit()
}

func (a *Adapter) DeleteRule(ctx context.Context, contextName, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM rules WHERE context = ? AND id = ?`, contextName, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(res)
}

func (a *Adapter) SaveFolder(ctx context.Context, folder storage.Folder) error {
	if folder.Context == "" {
		return fmt.Errorf("folder context is required")
	}
	if folder.ID == "" {
		folder.ID = storage.NewFolderID()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO folders (context, id, name, site_restriction, position, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(context, id) DO UPDATE SET
			name = excluded.name,
			site_restriction = excluded.site_restriction,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP`,
		folder.Context, folder.ID, folder.Name, folder.SiteRestriction, folder.Position)
	if err != nil {
		return fmt.Errorf("failed to save folder: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteFolder(ctx context.Context, contextName, id string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE context = ? AND folder_id = ?`, contextName, id); err != nil {
		return fmt.Errorf("failed to delete folder rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE context = ? AND id = ?`, contextName, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (a *Adapter) SaveItem(ctx context.Context, item storage.Item) error {
	if item.ID == "" || item.URL == "" {
		return fmt.Errorf("item id and url are required")
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO items (id, url, anchor, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET url = excluded.url, anchor = excluded.anchor, updated_at = CURRENT_TIMESTAMP`,
		item.ID, item.URL, item.Anchor)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteItem(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
