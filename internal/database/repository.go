package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"go-lead-radar/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository is the PostgreSQL implementation of Store. The schema is owned
// outside this module.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func ConnectDB(ctx context.Context, connString string) (*Repository, error) {
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	// PgBouncer in transaction mode does not support prepared statements.
	config.DefaultQueryExecMode = pgx.QueryExecModeExec

	db := stdlib.OpenDB(*config)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewRepository wraps an existing handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---------------- BUSINESS OPERATIONS ----------------

func (r *Repository) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text, slug, name, COALESCE(domain, ''), COALESCE(description, '')
		FROM businesses
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []models.Business
	index := make(map[string]int)
	for rows.Next() {
		b := models.Business{Active: true}
		if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &b.Domain, &b.Description); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		index[b.ID] = len(businesses)
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	if len(businesses) == 0 {
		return nil, nil
	}

	kwRows, err := r.db.QueryContext(ctx, `
		SELECT id::text, business_id::text, keyword, COALESCE(category, ''), COALESCE(suggested_by, '')
		FROM keywords
		WHERE is_active
		ORDER BY business_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer kwRows.Close()

	for kwRows.Next() {
		var kw models.Keyword
		if err := kwRows.Scan(&kw.ID, &kw.BusinessID, &kw.Text, &kw.Category, &kw.SuggestedBy); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		if i, ok := index[kw.BusinessID]; ok {
			businesses[i].Keywords = append(businesses[i].Keywords, kw)
		}
	}
	if err := kwRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}

	return businesses, nil
}

// ---------------- POST OPERATIONS ----------------

func (r *Repository) InsertPost(ctx context.Context, post *models.Post) error {
	keywords, err := json.Marshal(post.Keywords)
	if err != nil {
		return fmt.Errorf("encode post keywords: %w", err)
	}
	postedAt := sql.NullTime{Time: post.PostedAt, Valid: !post.PostedAt.IsZero()}

	query := `
		INSERT INTO posts (source, external_id, business_id, keywords, author, title, body, url, community, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source, external_id) DO NOTHING
		RETURNING id::text, captured_at`

	err = r.db.QueryRowContext(ctx, query,
		string(post.Source), post.ExternalID, post.BusinessID, string(keywords),
		post.Author, post.Title, post.Body, post.URL, post.Community, postedAt,
	).Scan(&post.ID, &post.CapturedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrDuplicate
	case isPgError(err, pgUniqueViolation):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (r *Repository) PostExists(ctx context.Context, source models.Source, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE source = $1 AND external_id = $2)`,
		string(source), externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check post existence: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id::text, p.source, p.external_id, p.business_id::text, COALESCE(p.keywords::text, '[]'),
		       COALESCE(p.author, ''), COALESCE(p.title, ''), COALESCE(p.body, ''), COALESCE(p.url, ''),
		       COALESCE(p.community, ''), COALESCE(p.posted_at, p.captured_at), p.captured_at
		FROM posts p
		JOIN businesses b ON b.id = p.business_id AND b.is_active
		WHERE NOT EXISTS (SELECT 1 FROM analysis a WHERE a.post_id = p.id)
		ORDER BY p.captured_at ASC, p.id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var (
			p        models.Post
			source   string
			keywords string
		)
		if err := rows.Scan(&p.ID, &source, &p.ExternalID, &p.BusinessID, &keywords,
			&p.Author, &p.Title, &p.Body, &p.URL, &p.Community, &p.PostedAt, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.Source = models.Source(source)
		if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords of post %s: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending posts: %w", err)
	}
	return posts, nil
}

func (r *Repository) AttachAnalysis(ctx context.Context, postID string, a models.Analysis) error {
	found, err := json.Marshal(a.KeywordsFound)
	if err != nil {
		return fmt.Errorf("encode keywords found: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis (post_id, relevance_score, rationale, post_type, pain_score, urgency,
		                      keywords_found, competitor_mentioned, suggested_response, model, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (post_id) DO NOTHING`,
		postID, a.Score, a.Rationale, string(a.PostType), a.PainScore, string(a.Urgency),
		string(found), a.CompetitorMentioned, a.SuggestedResponse, a.Model, a.ClassifiedAt,
	)
	if isPgError(err, pgForeignKeyViolation) {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	if n == 0 {
		return ErrAlreadyClassified
	}
	return nil
}

// ---------------- HEARTBEAT OPERATIONS ----------------

const heartbeatColumns = `id::text, job, COALESCE(source, ''), COALESCE(business_id::text, ''), outcome,
		counts::text, COALESCE(error, ''), started_at, finished_at`

func (r *Repository) RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error {
	counts, err := json.Marshal(hb.Counts)
	if err != nil {
		return fmt.Errorf("encode heartbeat counts: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO heartbeats (id, job, source, business_id, outcome, counts, error, started_at, finished_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)`,
		hb.ID, hb.Job, string(hb.Source), hb.BusinessID, string(hb.Outcome), string(counts),
		hb.Error, hb.StartedAt, hb.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (r *Repository) ListHeartbeats(ctx context.Context, job string, limit int) ([]models.Heartbeat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE ($1::text = '' OR job = $1)
		ORDER BY finished_at DESC
		LIMIT $2`, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	return scanHeartbeats(rows)
}

func (r *Repository) LatestHeartbeats(ctx context.Context) ([]models.Heartbeat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (job) `+heartbeatColumns+`
		FROM heartbeats
		ORDER BY job, finished_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest heartbeats: %w", err)
	}
	return scanHeartbeats(rows)
}

func (r *Repository) LastSuccess(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job, MAX(finished_at)
		FROM heartbeats
		WHERE outcome = 'success'
		GROUP BY job`)
	if err != nil {
		return nil, fmt.Errorf("failed to read last successes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			job string
			at  time.Time
		)
		if err := rows.Scan(&job, &at); err != nil {
			return nil, fmt.Errorf("failed to scan last success: %w", err)
		}
		out[job] = at
	}
	return out, rows.Err()
}

func scanHeartbeats(rows *sql.Rows) ([]models.Heartbeat, error) {
	defer rows.Close()

	var out []models.Heartbeat
	for rows.Next() {
		var (
			hb      models.Heartbeat
			source  string
			outcome string
			counts  string
		)
		if err := rows.Scan(&hb.ID, &hb.Job, &source, &hb.BusinessID, &outcome,
			&counts, &hb.Error, &hb.StartedAt, &hb.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan heartbeat: %w", err)
		}
		hb.Source = models.Source(source)
		hb.Outcome = models.Outcome(outcome)
		if err := json.Unmarshal([]byte(counts), &hb.Counts); err != nil {
			return nil, fmt.Errorf("decode heartbeat counts: %w", err)
		}
		out = append(out, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	return out, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
