// Package postgres stores rule records in PostgreSQL through a pgx connection pool
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

type Adapter struct {
	pool   *pgxpool.Pool
	config *Config
	logger logging.Logger
}

var _ storage.Store = (*Adapter)(nil)

func NewAdapter(ctx context.Context, config *Config, logger logging.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		pool:   pool,
		config: config,
		logger: logger.WithFields(logging.Component("postgres_store")),
	}

	if err := adapter.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			context TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			site_restriction TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (context, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_context_direction ON rules(context, direction)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			anchor TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := a.pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const selectRule = `SELECT r.id, r.kind, r.body, COALESCE(f.site_restriction, '')
	FROM rules r
	LEFT JOIN folders f ON f.context = r.context AND f.id = r.folder_id`

func (a *Adapter) LoadAll(ctx context.Context, contextName string, direction rules.Direction) ([]rules.RuleDefinition, error) {
	rows, err := a.pool.Query(ctx, selectRule+`
		WHERE r.context = $1 AND r.direction = $2
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
	row := a.pool.QueryRow(ctx, selectRule+` WHERE r.context = $1 AND r.id = $2`, contextName, id)
	def, err := scanDefinition(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func scanDefinition(row pgx.Row) (rules.RuleDefinition, error) {
	var id, kind, body, site string
	if err := row.Scan(&id, &kind, &body, &site); err != nil {
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
	err := a.pool.QueryRow(ctx, `SELECT url, anchor FROM items WHERE id = $1`, itemID).Scan(&url, &anchor)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", "", storage.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve item: %w", err)
	}
	return url, anchor, nil
}

func (a *Adapter) Contexts(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, `SELECT context FROM folders UNION SELECT context FROM rules ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
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

	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		position := record.Position
		if position <= 0 {
			err := tx.QueryRow(ctx, `SELECT position FROM rules WHERE context = $1 AND id = $2`,
				record.Context, record.ID()).Scan(&position)
			if stderrors.Is(err, pgx.ErrNoRows) {
				err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM rules WHERE context = $1`,
					record.Context).Scan(&position)
			}
			if err != nil {
				return fmt.Errorf("failed to determine rule position: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO rules (context, id, folder_id, kind, direction, position, body, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (context, id) DO UPDATE SET
				folder_id = EXCLUDED.folder_id,
				kind = EXCLUDED.kind,
				direction = EXCLUDED.direction,
				position = EXCLUDED.position,
				body = EXCLUDED.body,
				updated_at = NOW()`,
			record.Context, record.ID(), record.FolderID, string(record.Kind()), string(record.Direction()), position, string(body))
		if err != nil {
			return fmt.Errorf("failed to save rule: %w", err)
		}
		return nil
	})
}

func (a *Adapter) DeleteRule(ctx context.Context, contextName, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM rules WHERE context = $1 AND id = $2`, contextName, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(tag)
}

func (a *Adapter) SaveFolder(ctx context.Context, folder storage.Folder) error {
	if folder.Context == "" {
		return fmt.Errorf("folder context is required")
	}
	if folder.ID == "" {
		folder.ID = storage.NewFolderID()
	}
	_, err := a.pool.Exec(ctx, `
		INSERT INTO folders (context, id, name, site_restriction, position, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (context, id) DO UPDATE SET
			name = EXCLUDED.name,
			site_restriction = EXCLUDED.site_restriction,
			position = EXCLUDED.position,
			updated_at = NOW()`,
		folder.Context, folder.ID, folder.Name, folder.SiteRestriction, folder.Position)
	if err != nil {
		return fmt.Errorf("failed to save folder: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteFolder(ctx context.Context, contextName, id string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM rules WHERE context = $1 AND folder_id = $2`, contextName, id); err != nil {
			return fmt.Errorf("failed to delete folder rules: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM folders WHERE context = $1 AND id = $2`, contextName, id)
		if err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		return requireAffected(tag)
	})
}

func (a *Adapter) SaveItem(ctx context.Context, item storage.Item) error {
	if item.ID == "" || item.URL == "" {
		return fmt.Errorf("item id and url are required")
	}
	_, err := a.pool.Exec(ctx, `
		INSERT INTO items (id, url, anchor, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, anchor = EXCLUDED.anchor, updated_at = NOW()`,
		item.ID, item.URL, item.Anchor)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteItem(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireAffected(tag)
}

func requireAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
