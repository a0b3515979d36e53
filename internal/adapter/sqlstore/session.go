package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// maxResolveAttempts bounds the insert-then-lookup loop. A lookup only misses
// after a conflicting insert when the competing writer rolled back, so a
// second round almost always settles it.
const maxResolveAttempts = 5

// Session is one ingestion's connection to the store.
type Session struct {
	conn  *sql.Conn
	store *Store
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

// ResolveModel returns the id of the named model, creating it if absent.
func (s *Session) ResolveModel(ctx context.Context, name string) (int64, error) {
	d := s.store.dialect
	return s.resolve(ctx, resolution{
		kind: domain.EntityModel,
		key:  strconv.Quote(name),
		insert: fmt.Sprintf(`INSERT INTO %s (name) VALUES (?)
			ON CONFLICT (name) DO NOTHING RETURNING id`, d.table("models")),
		insertArgs: []any{name},
		lookup:     fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, d.table("models")),
		lookupArgs: []any{name},
	})
}

// ResolveCampaign returns the id of the named campaign, creating it with
// description if absent. An existing campaign keeps its description.
func (s *Session) ResolveCampaign(ctx context.Context, name, description string) (int64, error) {
	d := s.store.dialect
	return s.resolve(ctx, resolution{
		kind: domain.EntityCampaign,
		key:  strconv.Quote(name),
		insert: fmt.Sprintf(`INSERT INTO %s (name, description) VALUES (?, ?)
			ON CONFLICT (name) DO NOTHING RETURNING id`, d.table("campaigns")),
		insertArgs: []any{name, description},
		lookup:     fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, d.table("campaigns")),
		lookupArgs: []any{name},
	})
}

// ResolveSimulation returns the id of the simulation with key, creating it
// with description if absent.
func (s *Session) ResolveSimulation(ctx context.Context, key domain.SimulationKey, description string) (int64, error) {
	d := s.store.dialect
	return s.resolve(ctx, resolution{
		kind: domain.EntitySimulation,
		key:  key.String(),
		insert: fmt.Sprintf(`INSERT INTO %s (id_campaign, id_model, name, description) VALUES (?, ?, ?, ?)
			ON CONFLICT (id_campaign, id_model, name) DO NOTHING RETURNING id`, d.table("simulations")),
		insertArgs: []any{key.CampaignID, key.ModelID, key.Name, description},
		lookup: fmt.Sprintf(`SELECT id FROM %s
			WHERE id_campaign = ? AND id_model = ? AND name = ?`, d.table("simulations")),
		lookupArgs: []any{key.CampaignID, key.ModelID, key.Name},
	})
}

// ResolveOutput returns the id of the output with key, creating it if absent.
func (s *Session) ResolveOutput(ctx context.Context, key domain.OutputKey) (int64, error) {
	d := s.store.dialect
	key = domain.NewOutputKey(key.SimulationID, key.InitialDate, key.OutputType)
	return s.resolve(ctx, resolution{
		kind: domain.EntityOutput,
		key:  key.String(),
		insert: fmt.Sprintf(`INSERT INTO %s (id_simulation, initial_date, output_type) VALUES (?, ?, ?)
			ON CONFLICT (id_simulation, initial_date, output_type) DO NOTHING RETURNING id`, d.table("outputs")),
		insertArgs: []any{key.SimulationID, key.InitialDate, key.OutputType},
		lookup: fmt.Sprintf(`SELECT id FROM %s
			WHERE id_simulation = ? AND initial_date = ? AND output_type = ?`, d.table("outputs")),
		lookupArgs: []any{key.SimulationID, key.InitialDate, key.OutputType},
	})
}

// ResolveLoc returns the id of the Loc of type t under an output, creating it
// if absent.
func (s *Session) ResolveLoc(ctx context.Context, outputID int64, t domain.LocType) (int64, error) {
	typeUID, err := s.vocabularyUID(ctx, domain.EntityLocType, t.String())
	if err != nil {
		return 0, err
	}
	d := s.store.dialect
	return s.resolve(ctx, resolution{
		kind: domain.EntityLoc,
		key:  fmt.Sprintf("(output=%d, type=%s)", outputID, t),
		insert: fmt.Sprintf(`INSERT INTO %s (id_output, id_loc_type) VALUES (?, ?)
			ON CONFLICT (id_output, id_loc_type) DO NOTHING RETURNING id`, d.table("loc")),
		insertArgs: []any{outputID, typeUID},
		lookup:     fmt.Sprintf(`SELECT id FROM %s WHERE id_output = ? AND id_loc_type = ?`, d.table("loc")),
		lookupArgs: []any{outputID, typeUID},
	})
}

// StoreLine writes rec under a Loc unless a line already exists for its
// level, in which case the stored geometry is left untouched.
func (s *Session) StoreLine(ctx context.Context, locID int64, rec domain.LineRecord) (domain.LineOutcome, error) {
	outcomes, err := s.StoreLines(ctx, locID, []domain.LineRecord{rec})
	if err != nil {
		return 0, err
	}
	return outcomes[0], nil
}

// StoreLines writes all records in one transaction: either every new line is
// stored or none is. Level names are resolved before the transaction starts.
func (s *Session) StoreLines(ctx context.Context, locID int64, recs []domain.LineRecord) ([]domain.LineOutcome, error) {
	levelUIDs := make([]int64, len(recs))
	for i, rec := range recs {
		uid, err := s.vocabularyUID(ctx, domain.EntityLocLevel, rec.Level.String())
		if err != nil {
			return nil, err
		}
		levelUIDs[i] = uid
	}

	d := s.store.dialect
	q := d.rebind(fmt.Sprintf(`INSERT INTO %s (id_loc, id_loc_level, envelope, description)
		VALUES (?, ?, %s, ?)
		ON CONFLICT (id_loc, id_loc_level) DO NOTHING`, d.table("lines"), d.geometryIn()))

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError(domain.EntityLine, fmt.Sprintf("(loc=%d)", locID), err)
	}
	defer func() { _ = tx.Rollback() }()

	outcomes := make([]domain.LineOutcome, len(recs))
	for i, rec := range recs {
		key := fmt.Sprintf("(loc=%d, level=%s)", locID, rec.Level)
		res, err := tx.ExecContext(ctx, q, locID, levelUIDs[i], rec.Envelope, rec.Description)
		if err != nil {
			return nil, persistenceError(domain.EntityLine, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, persistenceError(domain.EntityLine, key, err)
		}
		outcomes[i] = domain.LineExisting
		if n > 0 {
			outcomes[i] = domain.LineStored
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceError(domain.EntityLine, fmt.Sprintf("(loc=%d)", locID), err)
	}
	return outcomes, nil
}

type resolution struct {
	kind       domain.EntityKind
	key        string
	insert     string
	insertArgs []any
	lookup     string
	lookupArgs []any
}

func (s *Session) resolve(ctx context.Context, r resolution) (int64, error) {
	cacheKey := string(r.kind) + "|" + r.key
	if id, ok := s.store.cache.Get(cacheKey); ok {
		return id, nil
	}

	d := s.store.dialect
	insert, lookup := d.rebind(r.insert), d.rebind(r.lookup)
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		var id int64
		err := s.conn.QueryRowContext(ctx, insert, r.insertArgs...).Scan(&id)
		if err == nil {
			s.store.cache.Add(cacheKey, id)
			s.store.logger.Debug("entity created", "entity", r.kind, "key", r.key, "id", id)
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, persistenceError(r.kind, r.key, err)
		}

		err = s.conn.QueryRowContext(ctx, lookup, r.lookupArgs...).Scan(&id)
		if err == nil {
			s.store.cache.Add(cacheKey, id)
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, persistenceError(r.kind, r.key, err)
		}
		s.store.logger.Debug("conflicting row vanished, retrying", "entity", r.kind, "key", r.key, "attempt", attempt)
	}
	return 0, &domain.PersistenceError{
		Entity: r.kind,
		Key:    r.key,
		Err:    fmt.Errorf("no row after %d insert attempts", maxResolveAttempts),
	}
}

// vocabularyUID looks up a seeded loc_type or loc_level. Unlike the hierarchy
// entities these are never created on demand.
func (s *Session) vocabularyUID(ctx context.Context, kind domain.EntityKind, name string) (int64, error) {
	cacheKey := string(kind) + "|" + name
	if id, ok := s.store.cache.Get(cacheKey); ok {
		return id, nil
	}

	d := s.store.dialect
	var q string
	switch kind {
	case domain.EntityLocType:
		q = fmt.Sprintf(`SELECT uid FROM %s WHERE type = ?`, d.table("loc_types"))
	case domain.EntityLocLevel:
		q = fmt.Sprintf(`SELECT uid FROM %s WHERE level_name = ?`, d.table("loc_levels"))
	default:
		return 0, fmt.Errorf("%s is not a vocabulary", kind)
	}

	var uid int64
	err := s.conn.QueryRowContext(ctx, d.rebind(q), name).Scan(&uid)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, &domain.UnknownVocabularyError{Kind: string(kind), Name: name}
	case err != nil:
		return 0, persistenceError(kind, strconv.Quote(name), err)
	}
	s.store.cache.Add(cacheKey, uid)
	return uid, nil
}
