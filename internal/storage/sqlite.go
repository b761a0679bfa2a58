package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slotwatch/internal/domain"
	logx "slotwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store, creating the database file and
// schema as needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Probe connectivity now so startup can fail fast instead of on the
	// first poll cycle.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddDoctor(ctx context.Context, d domain.Doctor) (int64, error) {
	keys, err := json.Marshal(d.Keys)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO doctors(provider, full_name, position, location, enabled, keys, added_at)
		 VALUES(?,?,?,?,?,?,?)`,
		d.Provider, d.FullName, d.Position, d.Location, boolInt(d.Enabled), string(keys),
		time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Doctors(ctx context.Context) ([]domain.Doctor, error) {
	return s.queryDoctors(ctx,
		`SELECT id, provider, full_name, position, location, enabled, keys FROM doctors ORDER BY id`)
}

func (s *sqliteStore) EnabledDoctors(ctx context.Context, provider string) ([]domain.Doctor, error) {
	return s.queryDoctors(ctx,
		`SELECT id, provider, full_name, position, location, enabled, keys
		 FROM doctors WHERE provider = ? AND enabled = 1 ORDER BY id`, provider)
}

func (s *sqliteStore) queryDoctors(ctx context.Context, query string, args ...any) ([]domain.Doctor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(row rowScanner) (domain.Doctor, error) {
	var (
		d       domain.Doctor
		enabled int
		keys    string
	)
	if err := row.Scan(&d.ID, &d.Provider, &d.FullName, &d.Position, &d.Location, &enabled, &keys); err != nil {
		return domain.Doctor{}, err
	}
	d.Enabled = enabled != 0
	if keys != "" {
		if err := json.Unmarshal([]byte(keys), &d.Keys); err != nil {
			return domain.Doctor{}, fmt.Errorf("doctor %d: bad keys json: %w", d.ID, err)
		}
	}
	return d, nil
}

func (s *sqliteStore) ToggleDoctor(ctx context.Context, id int64) (domain.Doctor, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE doctors SET enabled = 1 - enabled WHERE id = ?`, id)
	if err != nil {
		return domain.Doctor{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Doctor{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, full_name, position, location, enabled, keys FROM doctors WHERE id = ?`, id)
	return scanDoctor(row)
}

func (s *sqliteStore) AddRecipient(ctx context.Context, r domain.Recipient) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(chat_id, username, first_name, added_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name`,
		r.ChatID, r.Username, r.FirstName, time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Recipients(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, username, first_name FROM recipients ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ChatID, &r.Username, &r.FirstName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Slots(ctx context.Context, doctorID int64) ([]domain.Slot, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT slots FROM snapshots WHERE doctor_id = ?`, doctorID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var slots []domain.Slot
	if err := json.Unmarshal([]byte(blob), &slots); err != nil {
		return nil, fmt.Errorf("snapshot for doctor %d: bad slots json: %w", doctorID, err)
	}
	return slots, nil
}

func (s *sqliteStore) ReplaceSlots(ctx context.Context, doctorID int64, slots []domain.Slot) error {
	if slots == nil {
		slots = []domain.Slot{}
	}
	blob, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(doctor_id, slots, updated_at) VALUES(?,?,?)
		 ON CONFLICT(doctor_id) DO UPDATE SET slots=excluded.slots, updated_at=excluded.updated_at`,
		doctorID, string(blob), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
