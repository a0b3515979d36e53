package sqlstore

import (
	"context"
	"fmt"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

type columnTypes struct {
	id, ref, geometry, timestamp string
}

func (d dialect) columnTypes() columnTypes {
	if d.postgres() {
		return columnTypes{
			id:        "BIGSERIAL PRIMARY KEY",
			ref:       "BIGINT",
			geometry:  "geometry(Geometry, 4326)",
			timestamp: "TIMESTAMPTZ",
		}
	}
	return columnTypes{
		id:        "INTEGER PRIMARY KEY AUTOINCREMENT",
		ref:       "INTEGER",
		geometry:  "TEXT",
		timestamp: "TIMESTAMP",
	}
}

// ddl returns the statements creating the LOC hierarchy. Every natural key
// carries a UNIQUE constraint, which the resolve-or-create upserts rely on.
func (d dialect) ddl() []string {
	ct := d.columnTypes()
	t := d.table
	var stmts []string
	if d.postgres() {
		stmts = append(stmts,
			`CREATE EXTENSION IF NOT EXISTS postgis`,
			fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, d.schema),
		)
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid %s,
			name TEXT NOT NULL UNIQUE
		)`, t("loc_categories"), ct.id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid %s,
			type TEXT NOT NULL UNIQUE,
			id_category %s NOT NULL REFERENCES %s (uid)
		)`, t("loc_types"), ct.id, ct.ref, t("loc_categories")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid %s,
			level_name TEXT NOT NULL UNIQUE,
			id_type %s NOT NULL REFERENCES %s (uid)
		)`, t("loc_levels"), ct.id, ct.ref, t("loc_types")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			name TEXT NOT NULL UNIQUE
		)`, t("models"), ct.id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		)`, t("campaigns"), ct.id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			id_campaign %s NOT NULL REFERENCES %s (id),
			id_model %s NOT NULL REFERENCES %s (id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE (id_campaign, id_model, name)
		)`, t("simulations"), ct.id, ct.ref, t("campaigns"), ct.ref, t("models")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			id_simulation %s NOT NULL REFERENCES %s (id),
			initial_date %s NOT NULL,
			output_type TEXT NOT NULL,
			UNIQUE (id_simulation, initial_date, output_type)
		)`, t("outputs"), ct.id, ct.ref, t("simulations"), ct.timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			id_output %s NOT NULL REFERENCES %s (id),
			id_loc_type %s NOT NULL REFERENCES %s (uid),
			UNIQUE (id_output, id_loc_type)
		)`, t("loc"), ct.id, ct.ref, t("outputs"), ct.ref, t("loc_types")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			id_loc %s NOT NULL REFERENCES %s (id),
			id_loc_level %s NOT NULL REFERENCES %s (uid),
			envelope %s NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE (id_loc, id_loc_level)
		)`, t("lines"), ct.id, ct.ref, t("loc"), ct.ref, t("loc_levels"), ct.geometry),
	)
}

// Migrate creates the schema and seeds the LOC vocabulary. It is safe to run
// repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.ddl() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return s.seedVocabulary(ctx)
}

func (s *Store) seedVocabulary(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed vocabulary: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	d := s.dialect
	for _, c := range domain.Categories() {
		q := d.rebind(fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, d.table("loc_categories")))
		if _, err := tx.ExecContext(ctx, q, c.String()); err != nil {
			return fmt.Errorf("seed category %s: %w", c, err)
		}
	}
	for _, lt := range domain.LocTypes() {
		q := d.rebind(fmt.Sprintf(`INSERT INTO %s (type, id_category)
			SELECT ?, uid FROM %s WHERE name = ?
			ON CONFLICT (type) DO NOTHING`, d.table("loc_types"), d.table("loc_categories")))
		if _, err := tx.ExecContext(ctx, q, lt.String(), lt.Category().String()); err != nil {
			return fmt.Errorf("seed loc type %s: %w", lt, err)
		}
	}
	for _, l := range domain.LocLevels() {
		q := d.rebind(fmt.Sprintf(`INSERT INTO %s (level_name, id_type)
			SELECT ?, uid FROM %s WHERE type = ?
			ON CONFLICT (level_name) DO NOTHING`, d.table("loc_levels"), d.table("loc_types")))
		if _, err := tx.ExecContext(ctx, q, l.String(), l.LocType().String()); err != nil {
			return fmt.Errorf("seed loc level %s: %w", l, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed vocabulary: %w", err)
	}
	s.logger.Info("vocabulary seeded",
		"categories", len(domain.Categories()),
		"loc_types", len(domain.LocTypes()),
		"loc_levels", len(domain.LocLevels()),
	)
	return nil
}
