package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/catalog"
	"github.com/noah-isme/backend-klinik/internal/obs"
)

// repriced collects catalog rows whose stored price or flags changed, so their
// cache entries can be dropped once the transaction commits.
type repriced map[billing.Domain][]int64

func (r repriced) collect(ctx context.Context, tx pgx.Tx, domain billing.Domain, sql string, args ...any) error {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return err
	}
	r[domain] = append(r[domain], ids...)
	return nil
}

type labTest struct {
	Name  string
	Price int64
}

type scan struct {
	Name  string
	Price int64
	FormF bool
}

type medicine struct {
	Name    string
	GSTBps  int32
	Batches []batch
}

type batch struct {
	No     string
	Expiry string
	Qty    int32
	Price  int64
	Cost   int64
}

type doctor struct {
	Name string
	Bps  int32
}

// Prices are in paise.
var (
	labTests = []labTest{
		{"Complete Blood Count", 30000},
		{"Lipid Profile", 60000},
		{"HbA1c", 45000},
		{"Thyroid Profile (T3, T4, TSH)", 55000},
		{"Liver Function Test", 70000},
		{"Urine Routine", 15000},
	}
	scans = []scan{
		{"Obstetric Scan", 120000, true},
		{"Anomaly Scan", 250000, true},
		{"Whole Abdomen", 150000, false},
		{"Pelvis", 100000, false},
	}
	medicines = []medicine{
		{"Paracetamol 500mg (strip of 10)", 1200, []batch{{"PCM2401", "2027-03-31", 200, 2240, 1500}, {"PCM2312", "2026-06-30", 40, 2240, 1450}}},
		{"Amoxicillin 500mg (strip of 10)", 1200, []batch{{"AMX2405", "2027-01-31", 120, 5600, 4000}}},
		{"ORS Sachet", 500, []batch{{"ORS2402", "2026-12-31", 300, 2100, 1200}}},
		{"Cough Syrup 100ml", 1800, []batch{{"CS2403", "2026-11-30", 60, 9440, 6000}}},
	}
	doctors = []doctor{
		{"Dr. Meera Rao", 1000},
		{"Dr. Arjun Nair", 750},
		{"Dr. Kavita Shah", 0},
	}
)

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	changed := repriced{}
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedLab(ctx, tx, changed, logger); err != nil {
			return err
		}
		if err := seedUltrasound(ctx, tx, changed, logger); err != nil {
			return err
		}
		if err := seedPharmacy(ctx, tx, logger); err != nil {
			return err
		}
		return seedDoctors(ctx, tx, logger)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}
	invalidateCatalog(ctx, changed, logger)
	logger.Info().Msg("seeding completed")
}

func invalidateCatalog(ctx context.Context, changed repriced, logger zerolog.Logger) {
	if len(changed) == 0 {
		return
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Warn().Msg("REDIS_URL is not set, cached catalog entries expire on their own")
		return
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error().Err(err).Msg("parse REDIS_URL")
		return
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	cache := catalog.NewCache(rdb, 0)
	for domain, ids := range changed {
		for _, id := range ids {
			if err := cache.Invalidate(ctx, domain, id); err != nil {
				logger.Error().Err(err).Str("domain", string(domain)).Int64("item_id", id).Msg("invalidate catalog cache")
			}
		}
		logger.Info().Str("domain", string(domain)).Int("count", len(ids)).Msg("catalog cache invalidated")
	}
}

func seedLab(ctx context.Context, tx pgx.Tx, changed repriced, logger zerolog.Logger) error {
	for _, t := range labTests {
		if err := changed.collect(ctx, tx, billing.DomainLab,
			`UPDATE lab_tests SET unit_price = $2 WHERE name = $1 AND unit_price <> $2 RETURNING id`,
			t.Name, t.Price); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO lab_tests (name, unit_price)
			SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM lab_tests WHERE name = $1)`,
			t.Name, t.Price); err != nil {
			return err
		}
	}
	logger.Info().Int("count", len(labTests)).Msg("lab tests seeded")
	return nil
}

func seedUltrasound(ctx context.Context, tx pgx.Tx, changed repriced, logger zerolog.Logger) error {
	for _, s := range scans {
		if err := changed.collect(ctx, tx, billing.DomainUltrasound, `
			UPDATE ultrasound_scans SET unit_price = $2, form_f_required = $3
			WHERE name = $1 AND (unit_price <> $2 OR form_f_required <> $3) RETURNING id`,
			s.Name, s.Price, s.FormF); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ultrasound_scans (name, unit_price, form_f_required)
			SELECT $1, $2, $3 WHERE NOT EXISTS (SELECT 1 FROM ultrasound_scans WHERE name = $1)`,
			s.Name, s.Price, s.FormF); err != nil {
			return err
		}
	}
	logger.Info().Int("count", len(scans)).Msg("ultrasound scans seeded")
	return nil
}

func seedPharmacy(ctx context.Context, tx pgx.Tx, logger zerolog.Logger) error {
	lots := 0
	for _, m := range medicines {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM medicines WHERE name = $1`, m.Name).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, `INSERT INTO medicines (name, gst_bps) VALUES ($1, $2) RETURNING id`, m.Name, m.GSTBps).Scan(&id)
		}
		if err != nil {
			return err
		}
		for _, b := range m.Batches {
			if _, err := tx.Exec(ctx, `
				INSERT INTO pharmacy_stock (medicine_id, batch_no, expiry_date, quantity, unit_price, cost_price)
				VALUES ($1, $2, $3::date, $4, $5, $6)
				ON CONFLICT (medicine_id, batch_no) DO NOTHING`,
				id, b.No, b.Expiry, b.Qty, b.Price, b.Cost); err != nil {
				return err
			}
			lots++
		}
	}
	logger.Info().Int("medicines", len(medicines)).Int("lots", lots).Msg("pharmacy stock seeded")
	return nil
}

func seedDoctors(ctx context.Context, tx pgx.Tx, logger zerolog.Logger) error {
	for _, d := range doctors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO referring_doctors (name, incentive_bps)
			SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM referring_doctors WHERE name = $1)`,
			d.Name, d.Bps); err != nil {
			return err
		}
	}
	logger.Info().Int("count", len(doctors)).Msg("referring doctors seeded")
	return nil
}
