package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// InsertUser writes a new user document and its authorization index rows
// in one transaction, so a constraint failure on any authorization rolls
// the whole account back.
//
// The repository owns ID and timestamp assignment. A caller-provided
// CreatedAt is preserved, which imports rely on; everything else is set
// here.
func (db *DB) InsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("sqlite: encoding user %s: %w", user.ID, err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, doc, legacy_provider, legacy_uid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		string(doc),
		user.LegacyProvider,
		user.LegacyUID,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("user", user.ID)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.ID, err)
	}

	if err := indexAuthorizations(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %s: %w", user.ID, err)
	}
	return nil
}

// UpdateUser replaces the stored document and rebuilds the authorization
// index rows. Replacing instead of diffing keeps the side table correct
// no matter how the caller mutated the embedded slice.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("sqlite: encoding user %s: %w", user.ID, err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET doc = ?, legacy_provider = ?, legacy_uid = ?, updated_at = ?
		 WHERE id = ?`,
		string(doc),
		user.LegacyProvider,
		user.LegacyUID,
		user.UpdatedAt.UTC(),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %s: %w", user.ID, err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_authorizations WHERE user_id = ?`, user.ID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing authorization index for user %s: %w", user.ID, err)
	}
	if err := indexAuthorizations(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %s: %w", user.ID, err)
	}
	return nil
}

func indexAuthorizations(ctx context.Context, tx *sql.Tx, user *model.User) error {
	for _, a := range user.Authorizations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_authorizations (user_id, provider, uid, token_digest)
			 VALUES (?, ?, ?, ?)`,
			user.ID, a.Provider, a.UID, a.TokenDigest,
		)
		if err != nil {
			if isUniqueViolation(err) {
				if errMentionsTokenDigest(err) {
					return apperror.Duplicate("token", "access token already in use")
				}
				return apperror.Duplicate("authorization",
					fmt.Sprintf("%s/%s already linked", a.Provider, a.UID))
			}
			return fmt.Errorf("sqlite: indexing authorization %s/%s: %w", a.Provider, a.UID, err)
		}
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM users WHERE id = ?`, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return decodeUser(doc)
}

// FindUserByAuthorization resolves through the authorization index table,
// matching the embedded identity pairs.
func (db *DB) FindUserByAuthorization(ctx context.Context, provider, uid string) (*model.User, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT u.doc FROM users u
		 JOIN user_authorizations a ON a.user_id = u.id
		 WHERE a.provider = ? AND a.uid = ?`,
		provider, uid,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+"/"+uid)
		}
		return nil, fmt.Errorf("sqlite: finding user by authorization %s/%s: %w", provider, uid, err)
	}
	return decodeUser(doc)
}

// FindUserByLegacyUID resolves through the deprecated top-level identity
// columns that v1 accounts still carry.
func (db *DB) FindUserByLegacyUID(ctx context.Context, provider, uid string) (*model.User, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM users WHERE legacy_provider = ? AND legacy_uid = ?`,
		provider, uid,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+"/"+uid)
		}
		return nil, fmt.Errorf("sqlite: finding user by legacy uid %s/%s: %w", provider, uid, err)
	}
	return decodeUser(doc)
}

func (db *DB) FindUserByTokenDigest(ctx context.Context, digest string) (*model.User, error) {
	// Rows without a token keep an empty digest, so an empty query must
	// miss instead of matching one of them.
	if digest == "" {
		return nil, apperror.NotFound("user", "empty token digest")
	}

	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT u.doc FROM users u
		 JOIN user_authorizations a ON a.user_id = u.id
		 WHERE a.token_digest = ?`,
		digest,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", "token digest")
		}
		return nil, fmt.Errorf("sqlite: finding user by token digest: %w", err)
	}
	return decodeUser(doc)
}

func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	// SQLite treats LIMIT -1 as "no limit", which maps cleanly onto the
	// zero value of ListOptions.
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT doc FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		u, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the document. The authorization index rows cascade
// with it; weak references in other tables are the service's concern.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete of user %s: %w", id, err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func decodeUser(doc string) (*model.User, error) {
	var u model.User
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, fmt.Errorf("sqlite: decoding user document: %w", err)
	}
	return &u, nil
}
