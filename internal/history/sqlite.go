package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/sdg"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// recordResults is the JSON shape of the results column.
type recordResults struct {
	Predictions []models.PredictionResult `json:"predictions,omitempty"`
	Matches     []models.RuleMatch        `json:"matches,omitempty"`
}

// NewSQLiteStorage opens or creates the history database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist. An unreadable or corrupt database file is discarded and recreated
// empty: a broken history must never block startup.
func NewSQLiteStorage(dbPath string, logger *zap.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := open(dbPath)
	if err != nil {
		logger.Warn("history database unusable, resetting to empty",
			zap.String("path", dbPath), zap.Error(err))
		_ = os.Remove(dbPath)
		db, err = open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to reset history database: %w", err)
		}
	}
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		abstract TEXT,
		keywords TEXT,
		sdgs TEXT,
		results TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);
	`
	_, err := db.Exec(schema)
	return err
}

// sdgColumn renders the goal numbers present in a record as ",6,13," so an
// SDG filter can match with a single LIKE.
func sdgColumn(rec *models.ClassificationRecord) string {
	var nums []string
	seen := make(map[int]bool)
	add := func(label string) {
		if n := sdg.ParseLabel(label); n > 0 && !seen[n] {
			seen[n] = true
			nums = append(nums, fmt.Sprintf("%d", n))
		}
	}
	for _, p := range rec.Predictions {
		add(p.SDG)
	}
	for _, m := range rec.Matches {
		add(m.SDG)
	}
	if len(nums) == 0 {
		return ""
	}
	return "," + strings.Join(nums, ",") + ","
}

// Append inserts a record.
func (s *SQLiteStorage) Append(ctx context.Context, rec *models.ClassificationRecord) error {
	resultsJSON, err := json.Marshal(recordResults{Predictions: rec.Predictions, Matches: rec.Matches})
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, type, title, abstract, keywords, sdgs, results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Type), rec.Title, rec.Abstract, rec.Keywords,
		sdgColumn(rec), string(resultsJSON), rec.Timestamp,
	)
	return err
}

// Get returns a record by id.
func (s *SQLiteStorage) Get(ctx context.Context, id int64) (*models.ClassificationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, title, abstract, keywords, results, created_at
		 FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes a record by id. Removing an absent id succeeds.
func (s *SQLiteStorage) Remove(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

// RemoveMany deletes records in one transaction.
func (s *SQLiteStorage) RemoveMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns records newest-first. Type and SDG constraints are applied in
// SQL; date and search-id constraints are applied by the caller-facing Store.
func (s *SQLiteStorage) List(ctx context.Context, filter models.HistoryFilter, limit int) ([]*models.ClassificationRecord, error) {
	query := `SELECT id, type, title, abstract, keywords, results, created_at FROM records`
	var conds []string
	var args []interface{}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.SDG > 0 {
		conds = append(conds, "sdgs LIKE ?")
		args = append(args, fmt.Sprintf("%%,%d,%%", filter.SDG))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.ClassificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			// One unparsable row must not take the whole history down.
			s.logger.Warn("skipping unreadable history row", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(scan func(...interface{}) error) (*models.ClassificationRecord, error) {
	var rec models.ClassificationRecord
	var typ, resultsJSON string
	var created time.Time
	if err := scan(&rec.ID, &typ, &rec.Title, &rec.Abstract, &rec.Keywords, &resultsJSON, &created); err != nil {
		return nil, err
	}
	rec.Type = models.RecordType(typ)
	rec.Timestamp = created
	var results recordResults
	if err := json.Unmarshal([]byte(resultsJSON), &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	rec.Predictions = results.Predictions
	rec.Matches = results.Matches
	return &rec, nil
}

// Stats counts records over the full stored sequence.
func (s *SQLiteStorage) Stats(ctx context.Context) (models.HistoryStats, error) {
	var stats models.HistoryStats
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM records GROUP BY type`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return stats, err
		}
		stats.Total += n
		switch models.RecordType(typ) {
		case models.RecordModel:
			stats.Model = n
		case models.RecordRule:
			stats.Rule = n
		}
	}
	return stats, rows.Err()
}

// MaxID returns the largest stored id, 0 when empty.
func (s *SQLiteStorage) MaxID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM records`).Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
