package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"example/portfolio-api/app/config"
	"example/portfolio-api/app/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var db *sql.DB

// errNoDB is returned by the visitor queries when Postgres is not configured.
var errNoDB = errors.New("database not configured")

// InitDB opens and pings Postgres, then makes sure the guestbook and friends
// tables exist. An empty DSN leaves db nil and both features disabled.
func InitDB(ctx context.Context, cfg config.PostgresConfig) error {
	dsn := cfg.DSN()
	if dsn == "" {
		log.Warn().Msg("POSTGRES_URL not set, guestbook and friends disabled")
		return nil
	}

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	d.SetMaxOpenConns(10)
	d.SetConnMaxIdleTime(5 * time.Minute)

	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return fmt.Errorf("db.Ping: %w", err)
	}
	if err := ensureSchema(ctx, d); err != nil {
		_ = d.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}

	log.Info().Str("host", cfg.URL).Str("database", cfg.Database).Msg("connected to Postgres")
	db = d
	return nil
}

// MustInitDB is InitDB that exits the process on error.
func MustInitDB(ctx context.Context, cfg config.PostgresConfig) {
	if err := InitDB(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to init database")
	}
}

// CloseDB is safe to call when the database was never opened.
func CloseDB() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

func ensureSchema(ctx context.Context, d *sql.DB) error {
	_, err := d.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS visitors (
			id          BIGSERIAL PRIMARY KEY,
			name        VARCHAR(50)  NOT NULL,
			relation    VARCHAR(20)  NOT NULL,
			email       VARCHAR(255),
			ip_address  VARCHAR(64),
			user_agent  TEXT,
			email_sent  BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS visitors_created_at_idx ON visitors (created_at DESC);
		CREATE INDEX IF NOT EXISTS visitors_ip_created_idx ON visitors (ip_address, created_at);

		CREATE TABLE IF NOT EXISTS players (
			subject     TEXT         PRIMARY KEY,
			username    VARCHAR(30)  NOT NULL,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS players_username_idx ON players (lower(username));

		CREATE TABLE IF NOT EXISTS friend_requests (
			id            BIGSERIAL    PRIMARY KEY,
			from_subject  TEXT         NOT NULL REFERENCES players (subject) ON DELETE CASCADE,
			to_subject    TEXT         NOT NULL REFERENCES players (subject) ON DELETE CASCADE,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (from_subject, to_subject)
		);
		CREATE INDEX IF NOT EXISTS friend_requests_to_idx ON friend_requests (to_subject, created_at DESC);

		CREATE TABLE IF NOT EXISTS friendships (
			subject         TEXT         NOT NULL REFERENCES players (subject) ON DELETE CASCADE,
			friend_subject  TEXT         NOT NULL REFERENCES players (subject) ON DELETE CASCADE,
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (subject, friend_subject)
		);
	`)
	return err
}

func insertVisitor(ctx context.Context, v *models.Visitor) error {
	if db == nil {
		return errNoDB
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO visitors (name, relation, email, ip_address, user_agent)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING id, created_at
	`, v.Name, string(v.Relation), v.Email, v.IPAddress, v.UserAgent).Scan(&v.ID, &v.CreatedAt)
}

// signedSince reports whether ip has signed at or after since.
func signedSince(ctx context.Context, ip string, since time.Time) (bool, error) {
	if db == nil {
		return false, errNoDB
	}
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM visitors
			WHERE ip_address = $1 AND created_at >= $2
		)
	`, ip, since).Scan(&exists)
	return exists, err
}

func markEmailSent(ctx context.Context, id int64) error {
	if db == nil {
		return errNoDB
	}
	_, err := db.ExecContext(ctx, `UPDATE visitors SET email_sent = TRUE WHERE id = $1`, id)
	return err
}

// listPublicVisitors returns one page, newest first, plus the total count.
func listPublicVisitors(ctx context.Context, limit, offset int) ([]models.PublicVisitor, int, error) {
	if db == nil {
		return nil, 0, errNoDB
	}
	rows, err := db.QueryContext(ctx, `
		SELECT name, relation, created_at, COUNT(*) OVER ()
		FROM visitors
		ORDER BY created_at DESC, id DESC
		LIMIT $1
		OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.PublicVisitor{}
	total := 0
	for rows.Next() {
		var v models.PublicVisitor
		var relation string
		if err := rows.Scan(&v.Name, &relation, &v.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		v.Relation = models.Relation(relation)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 && offset > 0 {
		// window count is empty past the last page
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visitors`).Scan(&total); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// listVisitorsAdmin includes emails and request metadata. An empty
// relations filter matches everything.
func listVisitorsAdmin(ctx context.Context, relations []string, limit, offset int) ([]models.Visitor, error) {
	if db == nil {
		return nil, errNoDB
	}
	if relations == nil {
		// a nil array binds as NULL, not {}
		relations = []string{}
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, relation, COALESCE(email, ''), COALESCE(ip_address, ''),
		       COALESCE(user_agent, ''), email_sent, created_at
		FROM visitors
		WHERE cardinality($1::text[]) = 0 OR relation = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
		OFFSET $3
	`, pq.Array(relations), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Visitor{}
	for rows.Next() {
		var v models.Visitor
		var relation string
		if err := rows.Scan(
			&v.ID,
			&v.Name,
			&relation,
			&v.Email,
			&v.IPAddress,
			&v.UserAgent,
			&v.EmailSent,
			&v.CreatedAt,
		); err != nil {
			return nil, err
		}
		v.Relation = models.Relation(relation)
		out = append(out, v)
	}
	return out, rows.Err()
}

func visitorStats(ctx context.Context) (models.VisitorStats, error) {
	stats := models.VisitorStats{Relations: []models.RelationCount{}}
	if db == nil {
		return stats, errNoDB
	}

	err := db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('week', NOW()))
		FROM visitors
	`).Scan(&stats.Total, &stats.Today, &stats.ThisWeek)
	if err != nil {
		return stats, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT relation, COUNT(*)
		FROM visitors
		GROUP BY relation
		ORDER BY COUNT(*) DESC, relation
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var rc models.RelationCount
		var relation string
		if err := rows.Scan(&relation, &rc.Count); err != nil {
			return stats, err
		}
		rc.Relation = models.Relation(relation)
		stats.Relations = append(stats.Relations, rc)
	}
	return stats, rows.Err()
}
