package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marianozunino/cloudshare/internal/model"
)

const shareColumns = `id, file_id, user_id, access_type, password_hash, url, asset_public_id,
	asset_resource_type, owns_asset, expires_at, created_at, views, downloads`

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func scanShare(row rowScanner) (*model.Share, error) {
	var (
		s         model.Share
		password  sql.NullString
		ownsAsset int
		expiresAt sql.NullInt64
		createdAt int64
	)

	err := row.Scan(&s.ID, &s.FileID, &s.UserID, &s.AccessType, &password, &s.URL, &s.AssetPublicID,
		&s.AssetResourceType, &ownsAsset, &expiresAt, &createdAt, &s.Views, &s.Downloads)
	if err != nil {
		return nil, err
	}

	s.PasswordHash = password.String
	s.OwnsAsset = ownsAsset == 1
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		s.ExpiresAt = &t
	}
	s.CreatedAt = time.UnixMilli(createdAt)

	return &s, nil
}

// PutShare stores a new share document
func (db *DB) PutShare(ctx context.Context, s *model.Share) error {
	var password sql.NullString
	if s.PasswordHash != "" {
		password = sql.NullString{String: s.PasswordHash, Valid: true}
	}
	ownsAsset := 0
	if s.OwnsAsset {
		ownsAsset = 1
	}

	_, err := db.ExecContext(ctx, `INSERT INTO shares (`+shareColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FileID, s.UserID, string(s.AccessType), password, s.URL, s.AssetPublicID,
		s.AssetResourceType, ownsAsset, nullableMillis(s.ExpiresAt), s.CreatedAt.UnixMilli(), s.Views, s.Downloads)
	if err != nil {
		return fmt.Errorf("failed to store share %s: %w", s.ID, err)
	}
	return nil
}

// GetShare returns the share with id regardless of its expiry
func (db *DB) GetShare(ctx context.Context, id string) (*model.Share, error) {
	s, err := scanShare(db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteShare removes a share; deleting a missing share is not an error
func (db *DB) DeleteShare(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM shares WHERE id = ?`, id)
	return err
}

func (db *DB) queryShares(ctx context.Context, query string, args ...any) ([]model.Share, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []model.Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *s)
	}

	return shares, rows.Err()
}

// ListSharesExpiredBefore returns every share whose expiry is strictly
// before t. Shares without an expiry never match.
func (db *DB) ListSharesExpiredBefore(ctx context.Context, t time.Time) ([]model.Share, error) {
	return db.queryShares(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE expires_at IS NOT NULL AND expires_at < ? ORDER BY expires_at`,
		t.UnixMilli())
}

// ListSharesByUser returns the user's shares, newest first
func (db *DB) ListSharesByUser(ctx context.Context, uid string) ([]model.Share, error) {
	return db.queryShares(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE user_id = ? ORDER BY created_at DESC, id`,
		uid)
}

// DeleteSharesBatch deletes all ids in one transaction: either every
// document is removed or none is.
func (db *DB) DeleteSharesBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM shares WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to delete share %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// DeleteSharesByFile removes every share the user created for fileID
func (db *DB) DeleteSharesByFile(ctx context.Context, uid, fileID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM shares WHERE user_id = ? AND file_id = ?`, uid, fileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementShareCounter bumps the views or downloads statistic of a share
func (db *DB) IncrementShareCounter(ctx context.Context, id string, counter model.ShareCounter) error {
	var column string
	switch counter {
	case model.CounterViews:
		column = "views"
	case model.CounterDownloads:
		column = "downloads"
	default:
		return fmt.Errorf("unknown share counter %q", counter)
	}

	res, err := db.ExecContext(ctx, `UPDATE shares SET `+column+` = `+column+` + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrShareNotFound
	}
	return nil
}
