// Copyright (c) 2026 Divvy. All rights reserved.

// # Storage Layer
//
// Repositories in this file are strictly separated from domain logic. They
// implement the interfaces in store.go using the [pgxpool.Pool] connection
// manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped through [dberr.Wrap]
// to avoid leaking storage implementation details.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/divvyapp/divvy/internal/platform/dberr"
	"github.com/divvyapp/divvy/internal/platform/postgres"
)

const (
	resourceUser    = "User"
	resourceSession = "Session"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// UserColumns selects every account column in [ScanUser] order.
const UserColumns = `id, username, email, passwordhash, firstname, lastname,
	COALESCE(phone, ''), dateofbirth, role, createdat, updatedat`

// ScanUser reads one row selected with [UserColumns].
func ScanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.DateOfBirth,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

/*
Create persists a new user record into the users.account table.

Description: Ensures timestamps are initialized if not provided. Unique
violations on username or email surface as a Conflict.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, username, email, passwordhash, firstname, lastname, phone, dateofbirth, role, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.DateOfBirth,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_user_repo_create_failed: %w", dberr.Wrap(err, resourceUser))
	}

	return nil
}

/*
FindByEmail retrieves a user record by their unique email address.

Parameters:
  - context: context.Context
  - email: string (canonical form)

Returns:
  - *User: Hydrated account entity
  - error: dberr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	query := `SELECT ` + UserColumns + ` FROM users.account WHERE email = $1`

	user, err := ScanUser(repository.pool.QueryRow(context, query, email))
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", dberr.Wrap(err, resourceUser))
	}

	return user, nil
}

/*
FindByUsername retrieves a user record by their unique username.

Parameters:
  - context: context.Context
  - username: string (canonical form)

Returns:
  - *User: Hydrated account entity
  - error: dberr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	query := `SELECT ` + UserColumns + ` FROM users.account WHERE username = $1`

	user, err := ScanUser(repository.pool.QueryRow(context, query, username))
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_find_by_username_failed: %w", dberr.Wrap(err, resourceUser))
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	query := `SELECT ` + UserColumns + ` FROM users.account WHERE id = $1`

	user, err := ScanUser(repository.pool.QueryRow(context, query, id))
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", dberr.Wrap(err, resourceUser))
	}

	return user, nil
}

/*
UpdatePassword replaces the password hash and revokes the user's other active
sessions in a single transaction.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string
  - keepSessionID: string (empty revokes every session)

Returns:
  - int64: Sessions revoked
  - error: NotFound when no account matched, or execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash, keepSessionID string) (int64, error) {
	const updateQuery = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`

	const revokeQuery = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = $2
		WHERE userid = $1 AND isrevoked = FALSE AND id IS DISTINCT FROM $3::uuid`

	var keep any
	if keepSessionID != "" {
		keep = keepSessionID
	}

	now := time.Now().UTC()
	var revoked int64

	err := postgres.InTx(context, repository.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(context, updateQuery, userID, newHash, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}

		tag, err = tx.Exec(context, revokeQuery, userID, now, keep)
		if err != nil {
			return err
		}
		revoked = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("postgres_user_repo_update_password_failed: %w", dberr.Wrap(err, resourceUser))
	}
	return revoked, nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `id, userid, tokenhash, COALESCE(useragent, ''), COALESCE(ipaddress, ''),
	expiresat, isrevoked, revokedat, COALESCE(replacedby::text, ''), createdat`

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.ReplacedBy,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func insertSession(context context.Context, db postgres.DBTX, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)
	return err
}

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	if err := insertSession(context, repository.pool, session); err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", dberr.Wrap(err, resourceSession))
	}
	return nil
}

/*
FindByTokenHash retrieves a session by its unique token hash.

Description: Revoked and expired sessions are returned too, so the caller
can tell a replayed refresh token from an unknown one.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session metadata
  - error: dberr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM users.session WHERE tokenhash = $1`

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash))
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", dberr.Wrap(err, resourceSession))
	}

	return session, nil
}

/*
Rotate revokes previousID, links it to next, and inserts next in a single transaction.

Description: The revoke only matches a still-active row, so two concurrent
refreshes with the same token cannot both succeed.

Parameters:
  - context: context.Context
  - previousID: string
  - next: *Session

Returns:
  - error: dberr.NotFound if previousID was no longer active
*/
func (repository *PostgresSessionRepository) Rotate(context context.Context, previousID string, next *Session) error {
	const revokeQuery = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = $2, replacedby = $3
		WHERE id = $1 AND isrevoked = FALSE`

	err := postgres.InTx(context, repository.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(context, revokeQuery, previousID, time.Now().UTC(), next.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return insertSession(context, tx, next)
	})

	if err != nil {
		return fmt.Errorf("postgres_session_repo_rotate_failed: %w", dberr.Wrap(err, resourceSession))
	}
	return nil
}

/*
ListActive returns the user's active sessions, newest first.

Parameters:
  - context: context.Context
  - userID: string
  - now: time.Time

Returns:
  - []*Session: Possibly empty
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) ListActive(context context.Context, userID string, now time.Time) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM users.session
		WHERE userid = $1 AND isrevoked = FALSE AND expiresat > $2
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", dberr.Wrap(err, resourceSession))
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_list_scan_failed: %w", dberr.Wrap(err, resourceSession))
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", dberr.Wrap(err, resourceSession))
	}

	return sessions, nil
}

/*
Revoke marks one of the user's sessions as revoked.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: dberr.NotFound if no active session of that user matched
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, userID, sessionID string) error {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = $3
		WHERE id = $1 AND userid = $2 AND isrevoked = FALSE`

	tag, err := repository.pool.Exec(context, query, sessionID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", dberr.Wrap(err, resourceSession))
	}
	if tag.RowsAffected() == 0 {
		return dberr.NotFound(resourceSession)
	}
	return nil
}

/*
RevokeAll marks all active sessions for a user as revoked.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int64: Sessions revoked
  - error: Batch revocation failures
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, userID string) (int64, error) {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = $2
		WHERE userid = $1 AND isrevoked = FALSE`

	tag, err := repository.pool.Exec(context, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", dberr.Wrap(err, resourceSession))
	}
	return tag.RowsAffected(), nil
}

/*
DeleteExpired permanently removes all sessions that have passed their expiration.

Parameters:
  - context: context.Context
  - now: time.Time

Returns:
  - int64: Rows removed
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	const query = "DELETE FROM users.session WHERE expiresat <= $1"

	tag, err := repository.pool.Exec(context, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", dberr.Wrap(err, resourceSession))
	}
	return tag.RowsAffected(), nil
}
