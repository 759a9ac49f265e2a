package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"example/portfolio-api/app/models"

	"github.com/lib/pq"
)

var (
	ErrNoProfile       = errors.New("choose a username first")
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username is taken")
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends  = errors.New("already friends with this user")
	ErrRequestExists   = errors.New("friend request already sent")
	ErrRequestNotFound = errors.New("friend request not found")
)

// FriendStore keeps players, pending requests and friendships. Subjects are
// verified token subjects; everything a caller sees is keyed by username.
type FriendStore interface {
	SetUsername(ctx context.Context, subject, username string) (models.Player, error)
	Profile(ctx context.Context, subject string) (models.Player, error)
	SendRequest(ctx context.Context, subject, username string) (models.FriendRequest, error)
	Accept(ctx context.Context, subject string, requestID int64) (models.Friend, error)
	Reject(ctx context.Context, subject string, requestID int64) error
	Requests(ctx context.Context, subject string) ([]models.FriendRequest, error)
	Friends(ctx context.Context, subject string) ([]models.Friend, error)
	Remove(ctx context.Context, subject, username string) error
	Search(ctx context.Context, subject, query string, limit int) ([]models.Player, error)
}

// pgFriends runs against the package db and reports errNoDB without it.
type pgFriends struct{}

const uniqueViolation = "23505"

func (pgFriends) SetUsername(ctx context.Context, subject, username string) (models.Player, error) {
	p := models.Player{Username: username}
	if db == nil {
		return p, errNoDB
	}
	err := db.QueryRowContext(ctx, `
		INSERT INTO players (subject, username)
		VALUES ($1, $2)
		ON CONFLICT (subject) DO UPDATE SET username = EXCLUDED.username
		RETURNING created_at
	`, subject, username).Scan(&p.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return p, ErrUsernameTaken
	}
	return p, err
}

func (pgFriends) Profile(ctx context.Context, subject string) (models.Player, error) {
	var p models.Player
	if db == nil {
		return p, errNoDB
	}
	err := db.QueryRowContext(ctx, `
		SELECT username, created_at FROM players WHERE subject = $1
	`, subject).Scan(&p.Username, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNoProfile
	}
	return p, err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func usernameOf(ctx context.Context, q queryer, subject string) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT username FROM players WHERE subject = $1`, subject).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoProfile
	}
	return name, err
}

func subjectOf(ctx context.Context, q queryer, username string) (subject, canonical string, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT subject, username FROM players WHERE lower(username) = lower($1)
	`, username).Scan(&subject, &canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrUserNotFound
	}
	return subject, canonical, err
}

// inTx commits when fn returns nil and rolls back otherwise.
func inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if db == nil {
		return errNoDB
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (pgFriends) SendRequest(ctx context.Context, subject, username string) (models.FriendRequest, error) {
	var r models.FriendRequest
	err := inTx(ctx, func(tx *sql.Tx) error {
		from, err := usernameOf(ctx, tx, subject)
		if err != nil {
			return err
		}
		to, canonical, err := subjectOf(ctx, tx, username)
		if err != nil {
			return err
		}
		if to == subject {
			return ErrSelfRequest
		}

		var friends bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM friendships WHERE subject = $1 AND friend_subject = $2)
		`, subject, to).Scan(&friends)
		if err != nil {
			return err
		}
		if friends {
			return ErrAlreadyFriends
		}

		r.From, r.To = from, canonical
		err = tx.QueryRowContext(ctx, `
			INSERT INTO friend_requests (from_subject, to_subject)
			VALUES ($1, $2)
			ON CONFLICT (from_subject, to_subject) DO NOTHING
			RETURNING id, created_at
		`, subject, to).Scan(&r.ID, &r.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestExists
		}
		return err
	})
	return r, err
}

// Accept turns a request addressed to subject into a friendship in both
// directions. A crossing request the other way is dropped with it.
func (pgFriends) Accept(ctx context.Context, subject string, requestID int64) (models.Friend, error) {
	var f models.Friend
	err := inTx(ctx, func(tx *sql.Tx) error {
		var from string
		err := tx.QueryRowContext(ctx, `
			DELETE FROM friend_requests WHERE id = $1 AND to_subject = $2
			RETURNING from_subject
		`, requestID, subject).Scan(&from)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM friend_requests WHERE from_subject = $1 AND to_subject = $2
		`, subject, from); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO friendships (subject, friend_subject)
			VALUES ($1, $2), ($2, $1)
			ON CONFLICT DO NOTHING
		`, subject, from); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT p.username, f.created_at
			FROM friendships f
			JOIN players p ON p.subject = f.friend_subject
			WHERE f.subject = $1 AND f.friend_subject = $2
		`, subject, from).Scan(&f.Username, &f.Since)
	})
	return f, err
}

func (pgFriends) Reject(ctx context.Context, subject string, requestID int64) error {
	if db == nil {
		return errNoDB
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE id = $1 AND to_subject = $2
	`, requestID, subject)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// Requests lists requests waiting on subject, newest first.
func (pgFriends) Requests(ctx context.Context, subject string) ([]models.FriendRequest, error) {
	if db == nil {
		return nil, errNoDB
	}
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, p.username, me.username, r.created_at
		FROM friend_requests r
		JOIN players p ON p.subject = r.from_subject
		JOIN players me ON me.subject = r.to_subject
		WHERE r.to_subject = $1
		ORDER BY r.created_at DESC, r.id DESC
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.FriendRequest{}
	for rows.Next() {
		var r models.FriendRequest
		if err := rows.Scan(&r.ID, &r.From, &r.To, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (pgFriends) Friends(ctx context.Context, subject string) ([]models.Friend, error) {
	if db == nil {
		return nil, errNoDB
	}
	rows, err := db.QueryContext(ctx, `
		SELECT p.username, f.created_at
		FROM friendships f
		JOIN players p ON p.subject = f.friend_subject
		WHERE f.subject = $1
		ORDER BY lower(p.username)
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.Username, &f.Since); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Remove ends a friendship from both sides. Removing a stranger is a no-op.
func (pgFriends) Remove(ctx context.Context, subject, username string) error {
	return inTx(ctx, func(tx *sql.Tx) error {
		other, _, err := subjectOf(ctx, tx, username)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM friendships
			WHERE (subject = $1 AND friend_subject = $2)
			   OR (subject = $2 AND friend_subject = $1)
		`, subject, other)
		return err
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches usernames containing query, case-insensitively, leaving
// out the caller.
func (pgFriends) Search(ctx context.Context, subject, query string, limit int) ([]models.Player, error) {
	if db == nil {
		return nil, errNoDB
	}
	rows, err := db.QueryContext(ctx, `
		SELECT username, created_at
		FROM players
		WHERE subject <> $1 AND username ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY lower(username)
		LIMIT $3
	`, subject, likeEscaper.Replace(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Player{}
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.Username, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
