package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"SmartMix/internal/mix"
)

const feedbackTable = "mix_feedback"

const schema = `CREATE TABLE IF NOT EXISTS mix_feedback (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT NOT NULL DEFAULT '',
	mix            JSONB NOT NULL,
	predicted_cs28 DOUBLE PRECISION NOT NULL,
	measured_cs28  DOUBLE PRECISION NOT NULL,
	note           TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Feedback is a laboratory measurement reported against a prediction.
type Feedback struct {
	ID            int64      `json:"id"`
	SessionID     string     `json:"-"`
	Mix           mix.Design `json:"mix"`
	PredictedCS28 float64    `json:"predicted_cs28"`
	MeasuredCS28  float64    `json:"measured_cs28"`
	Note          string     `json:"note"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Repository interface {
	CreateFeedback(ctx context.Context, f Feedback) (int64, error)
	LatestFeedback(ctx context.Context, limit uint64) ([]Feedback, error)
}

type PostgresFeedbackRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ Repository = (*PostgresFeedbackRepository)(nil)

func NewPostgresFeedbackDB(db *sql.DB) *PostgresFeedbackRepository {
	return &PostgresFeedbackRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// InitDB opens and pings Postgres. A URL without sslmode gets sslmode=require.
func InitDB(ctx context.Context, connStr string) (*sql.DB, error) {
	if !strings.Contains(connStr, "sslmode=") {
		if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
			sep := "?"
			if strings.Contains(connStr, "?") {
				sep = "&"
			}
			connStr = connStr + sep + "sslmode=require"
		} else {
			connStr = connStr + " sslmode=require"
		}
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the feedback table when missing.
func (r *PostgresFeedbackRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s: %w", feedbackTable, err)
	}
	return nil
}

func (r *PostgresFeedbackRepository) insertQuery(f Feedback) (string, []any, error) {
	design, err := json.Marshal(f.Mix)
	if err != nil {
		return "", nil, err
	}
	return r.sb.Insert(feedbackTable).
		Columns("session_id", "mix", "predicted_cs28", "measured_cs28", "note").
		Values(f.SessionID, string(design), f.PredictedCS28, f.MeasuredCS28, f.Note).
		Suffix("RETURNING id").
		ToSql()
}

func (r *PostgresFeedbackRepository) latestQuery(limit uint64) (string, []any, error) {
	return r.sb.Select("id", "session_id", "mix", "predicted_cs28", "measured_cs28", "note", "created_at").
		From(feedbackTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		ToSql()
}

func (r *PostgresFeedbackRepository) CreateFeedback(ctx context.Context, f Feedback) (int64, error) {
	query, args, err := r.insertQuery(f)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return id, nil
}

func (r *PostgresFeedbackRepository) LatestFeedback(ctx context.Context, limit uint64) ([]Feedback, error) {
	query, args, err := r.latestQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	out := make([]Feedback, 0, limit)
	for rows.Next() {
		var (
			f      Feedback
			design []byte
		)
		if err := rows.Scan(&f.ID, &f.SessionID, &design, &f.PredictedCS28, &f.MeasuredCS28, &f.Note, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if err := json.Unmarshal(design, &f.Mix); err != nil {
			return nil, fmt.Errorf("decode feedback %d mix: %w", f.ID, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
