package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/servezone/internal/core/domain"
)

const zoneColumns = `
	id, display_name,
	ST_Y(center::geometry) AS lat,
	ST_X(center::geometry) AS lon,
	radius_km, is_active, updated_at`

const upsertZoneSQL = `
	INSERT INTO service_zones (id, display_name, center, radius_km, is_active, updated_at)
	VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE
	SET display_name = EXCLUDED.display_name, center = EXCLUDED.center,
	    radius_km = EXCLUDED.radius_km, is_active = EXCLUDED.is_active,
	    updated_at = EXCLUDED.updated_at`

// ZoneRepo implements ports.ZoneRepository with pgx and PostGIS.
type ZoneRepo struct {
	q Querier
}

// NewZoneRepo creates a new ZoneRepo.
func NewZoneRepo(db *DB) *ZoneRepo {
	return &ZoneRepo{q: db.Pool}
}

// NewZoneRepoWithQuerier creates a ZoneRepo over any Querier.
func NewZoneRepoWithQuerier(q Querier) *ZoneRepo {
	return &ZoneRepo{q: q}
}

// ListActive returns active zones ordered by id.
func (r *ZoneRepo) ListActive(ctx context.Context) ([]domain.ServiceZone, error) {
	return r.list(ctx, `SELECT`+zoneColumns+` FROM service_zones WHERE is_active ORDER BY id`)
}

// ListAll returns every zone ordered by id.
func (r *ZoneRepo) ListAll(ctx context.Context) ([]domain.ServiceZone, error) {
	return r.list(ctx, `SELECT`+zoneColumns+` FROM service_zones ORDER BY id`)
}

func (r *ZoneRepo) list(ctx context.Context, sql string) ([]domain.ServiceZone, error) {
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []domain.ServiceZone
	for rows.Next() {
		var z domain.ServiceZone
		if err := rows.Scan(&z.ID, &z.DisplayName, &z.Center.Lat, &z.Center.Lon, &z.RadiusKm, &z.IsActive, &z.UpdatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// GetByID returns a zone by id.
func (r *ZoneRepo) GetByID(ctx context.Context, id string) (*domain.ServiceZone, error) {
	var z domain.ServiceZone
	err := r.q.QueryRow(ctx, `SELECT`+zoneColumns+` FROM service_zones WHERE id = $1`, id).
		Scan(&z.ID, &z.DisplayName, &z.Center.Lat, &z.Center.Lon, &z.RadiusKm, &z.IsActive, &z.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("zone %q: %w", id, domain.ErrZoneNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// Upsert inserts or updates a single zone.
func (r *ZoneRepo) Upsert(ctx context.Context, z *domain.ServiceZone) error {
	_, err := r.q.Exec(ctx, upsertZoneSQL,
		z.ID, z.DisplayName, z.Center.Lon, z.Center.Lat, z.RadiusKm, z.IsActive, z.UpdatedAt)
	return err
}

// UpsertBatch inserts many zones using pgx.Batch.
func (r *ZoneRepo) UpsertBatch(ctx context.Context, zones []domain.ServiceZone) error {
	if len(zones) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, z := range zones {
		batch.Queue(upsertZoneSQL,
			z.ID, z.DisplayName, z.Center.Lon, z.Center.Lat, z.RadiusKm, z.IsActive, z.UpdatedAt)
	}
	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for _, z := range zones {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec zone %q: %w", z.ID, err)
		}
	}
	return nil
}
