package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gasanashema/procure-to-pay/internal/config"
	"github.com/gasanashema/procure-to-pay/internal/db"
	"github.com/gasanashema/procure-to-pay/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL,
    role          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email));

CREATE TABLE IF NOT EXISTS refresh_token_sessions (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    token_hash TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked_at TIMESTAMPTZ,
    user_agent TEXT,
    ip_address TEXT
);
CREATE INDEX IF NOT EXISTS refresh_token_sessions_user_idx ON refresh_token_sessions (user_id);

CREATE TABLE IF NOT EXISTS purchase_requests (
    id                  UUID PRIMARY KEY,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    amount_cents        BIGINT NOT NULL,
    vendor_name         TEXT NOT NULL,
    category            TEXT NOT NULL,
    urgency             TEXT NOT NULL,
    status              TEXT NOT NULL,
    created_by          UUID NOT NULL REFERENCES users (id),
    proforma_file       TEXT,
    receipt_file        TEXT,
    purchase_order_file TEXT,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS purchase_requests_created_by_idx ON purchase_requests (created_by);
CREATE INDEX IF NOT EXISTS purchase_requests_status_idx ON purchase_requests (status);

CREATE TABLE IF NOT EXISTS request_items (
    id           UUID PRIMARY KEY,
    request_id   UUID NOT NULL REFERENCES purchase_requests (id) ON DELETE CASCADE,
    item_name    TEXT NOT NULL,
    price_cents  BIGINT NOT NULL,
    quantity     INT NOT NULL
);
CREATE INDEX IF NOT EXISTS request_items_request_idx ON request_items (request_id);

CREATE TABLE IF NOT EXISTS approvals (
    id          UUID PRIMARY KEY,
    request_id  UUID NOT NULL REFERENCES purchase_requests (id) ON DELETE CASCADE,
    approver_id UUID NOT NULL REFERENCES users (id),
    role        TEXT NOT NULL,
    status      TEXT NOT NULL,
    comments    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS approvals_request_idx ON approvals (request_id);

CREATE TABLE IF NOT EXISTS purchase_orders (
    id           UUID PRIMARY KEY,
    po_number    TEXT NOT NULL UNIQUE,
    request_id   UUID NOT NULL UNIQUE REFERENCES purchase_requests (id),
    vendor_name  TEXT NOT NULL,
    amount_cents BIGINT NOT NULL,
    status       TEXT NOT NULL,
    created_by   UUID NOT NULL REFERENCES users (id),
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_order_items (
    id          UUID PRIMARY KEY,
    po_id       UUID NOT NULL REFERENCES purchase_orders (id) ON DELETE CASCADE,
    item_name   TEXT NOT NULL,
    price_cents BIGINT NOT NULL,
    quantity    INT NOT NULL
);
CREATE INDEX IF NOT EXISTS purchase_order_items_po_idx ON purchase_order_items (po_id);
`

func main() {
	seed := flag.Bool("seed", false, "load demo users and requests after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "procure-to-pay-migrate").Logger()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connection failed")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("schema up to date")

	if *seed {
		store := repository.NewPGStore(pool)
		if err := repository.SeedDemoData(ctx, store); err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
		log.Info().Str("password", repository.DemoPassword).Msg("demo data loaded")
	}
}
