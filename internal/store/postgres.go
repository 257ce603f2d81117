package store

import (
    "context"
    "database/sql"
    "errors"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"
)

const linkageSchema = `
CREATE TABLE IF NOT EXISTS crm_linkage (
    external_order_id TEXT PRIMARY KEY,
    crm_order_id      TEXT NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresLinkage keeps CRM linkage in a durable table. Queue and history stay in Redis.
type PostgresLinkage struct {
    db *sql.DB
}

func NewPostgresLinkage(dsn string) (*PostgresLinkage, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(4)
    db.SetConnMaxIdleTime(5 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &PostgresLinkage{db: db}, nil
}

// Migrate creates the linkage table if missing.
func (p *PostgresLinkage) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, linkageSchema)
    return err
}

func (p *PostgresLinkage) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresLinkage) Close() error { return p.db.Close() }

func (p *PostgresLinkage) Get(ctx context.Context, externalID string) (string, error) {
    var id string
    err := p.db.QueryRowContext(ctx, `SELECT crm_order_id FROM crm_linkage WHERE external_order_id=$1`, externalID).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) { return "", ErrNoLinkage }
    return id, err
}

// Put upserts; a repeated stage-1 event overwrites the previous CRM id.
func (p *PostgresLinkage) Put(ctx context.Context, externalID, crmID string) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO crm_linkage (external_order_id, crm_order_id) VALUES ($1,$2)
        ON CONFLICT (external_order_id) DO UPDATE SET crm_order_id=EXCLUDED.crm_order_id, updated_at=now()`, externalID, crmID)
    return err
}
