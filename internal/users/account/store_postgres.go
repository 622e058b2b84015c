// Copyright (c) 2026 Divvy. All rights reserved.

package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/divvyapp/divvy/internal/platform/dberr"
	"github.com/divvyapp/divvy/internal/users/auth"
)

const resourceUser = "User"

// likeEscaper escapes LIKE wildcards in user-supplied search text.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository implements [Repository] over the users.account table.
// Lookups by ID are shared with the auth repository.
type PostgresRepository struct {
	*auth.PostgresUserRepository
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of [Repository].
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		PostgresUserRepository: auth.NewUserRepository(pool),
		pool:                   pool,
	}
}

// UpdateProfile writes the profile columns and reads back the new updatedat.
func (repository *PostgresRepository) UpdateProfile(context context.Context, user *auth.User) error {
	const query = `
		UPDATE users.account
		SET firstname = $2, lastname = $3, phone = NULLIF($4, ''), dateofbirth = $5, updatedat = now()
		WHERE id = $1
		RETURNING updatedat`

	err := repository.pool.QueryRow(context, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.DateOfBirth,
	).Scan(&user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("postgres_account_repo_update_failed: %w", dberr.Wrap(err, resourceUser))
	}
	return nil
}

// listFilterClause selects the accounts matching a [ListFilter] bound as $1 and $2.
const listFilterClause = `
		WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		  AND (cardinality($2::text[]) = 0 OR role = ANY($2::text[]))`

/*
List returns one page of accounts, newest first.

Description: Uses COUNT(*) OVER() to retrieve the total matching count in the
same round trip as the page itself. A page past the end carries no rows, so
the total is then counted separately.
*/
func (repository *PostgresRepository) List(context context.Context, filter ListFilter, limit, offset int) ([]*auth.User, int, error) {
	const query = `
		SELECT ` + auth.UserColumns + `, COUNT(*) OVER() AS total_count
		FROM users.account` + listFilterClause + `
		ORDER BY createdat DESC, id
		LIMIT $3 OFFSET $4`

	search := likeEscaper.Replace(filter.Query)

	// A nil slice would encode as NULL, which cardinality() does not treat as empty.
	roles := make([]string, 0, len(filter.Roles))
	for _, role := range filter.Roles {
		roles = append(roles, string(role))
	}

	rows, err := repository.pool.Query(context, query, search, roles, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_account_repo_list_failed: %w", dberr.Wrap(err, resourceUser))
	}
	defer rows.Close()

	var (
		users []*auth.User
		total int
	)
	for rows.Next() {
		user := &auth.User{}
		err := rows.Scan(
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
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_account_repo_list_scan_failed: %w", dberr.Wrap(err, resourceUser))
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_account_repo_list_failed: %w", dberr.Wrap(err, resourceUser))
	}

	if len(users) == 0 && offset > 0 {
		const countQuery = `SELECT COUNT(*) FROM users.account` + listFilterClause

		if err := repository.pool.QueryRow(context, countQuery, search, roles).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("postgres_account_repo_count_failed: %w", dberr.Wrap(err, resourceUser))
		}
	}
	return users, total, nil
}

// Delete removes the account row. Sessions cascade.
func (repository *PostgresRepository) Delete(context context.Context, id string) error {
	tag, err := repository.pool.Exec(context, `DELETE FROM users.account WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_delete_failed: %w", dberr.Wrap(err, resourceUser))
	}
	if tag.RowsAffected() == 0 {
		return dberr.NotFound(resourceUser)
	}
	return nil
}
