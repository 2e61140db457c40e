package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/marianozunino/cloudshare/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrShareNotFound   = errors.New("share not found")
	ErrVersionConflict = errors.New("user document was modified concurrently")
)

type DB struct {
	*sql.DB
	now func() time.Time
}

// NewDB creates a new SQLite database connection. The schema is owned by
// the migration package and must be applied separately.
func NewDB(config *config.Config) (*DB, error) {
	db, err := sql.Open("sqlite3", config.SQLitePath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// EnsureUser creates the user document if it does not exist yet and keeps
// the stored email current.
func (db *DB) EnsureUser(ctx context.Context, uid, email string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (uid, email, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET email = excluded.email
		WHERE excluded.email != '' AND excluded.email != users.email
	`, uid, email, db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to ensure user %s: %w", uid, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.UserDocument, error) {
	var (
		doc       model.UserDocument
		images    string
		files     string
		updatedAt int64
	)

	if err := row.Scan(&doc.UID, &doc.Email, &images, &files, &doc.Version, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(images), &doc.Images); err != nil {
		return nil, fmt.Errorf("failed to decode image array: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &doc.Files); err != nil {
		return nil, fmt.Errorf("failed to decode file array: %w", err)
	}
	if updatedAt > 0 {
		doc.UpdatedAt = time.UnixMilli(updatedAt)
	}

	return &doc, nil
}

const selectUser = `SELECT uid, email, images, files, version, updated_at FROM users WHERE uid = ?`

// GetUserDocument returns the user's document with both arrays decoded
func (db *DB) GetUserDocument(ctx context.Context, uid string) (*model.UserDocument, error) {
	doc, err := scanUser(db.QueryRowContext(ctx, selectUser, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AppendImage adds rec to the user's image array unless an entry with the
// same publicId is already present
func (db *DB) AppendImage(ctx context.Context, uid string, rec model.FileRecord) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := db.lockUser(ctx, tx, uid)
		if err != nil {
			return err
		}
		if doc.FindImage(rec.PublicID) >= 0 {
			return nil
		}
		return db.writeArray(ctx, tx, uid, "images", append(doc.Images, rec), doc.Version)
	})
}

// AppendFile adds rec to the user's file array unless an entry with the
// same publicId is already present
func (db *DB) AppendFile(ctx context.Context, uid string, rec model.ShareRecord) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := db.lockUser(ctx, tx, uid)
		if err != nil {
			return err
		}
		if doc.FindFile(rec.PublicID) >= 0 {
			return nil
		}
		return db.writeArray(ctx, tx, uid, "files", append(doc.Files, rec), doc.Version)
	})
}

// ReplaceImages overwrites the image array if the document is still at
// expectedVersion. ErrVersionConflict means another writer got there first.
func (db *DB) ReplaceImages(ctx context.Context, uid string, images []model.FileRecord, expectedVersion int64) error {
	if images == nil {
		images = []model.FileRecord{}
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.writeArray(ctx, tx, uid, "images", images, expectedVersion)
	})
}

// ReplaceFiles overwrites the file array if the document is still at
// expectedVersion
func (db *DB) ReplaceFiles(ctx context.Context, uid string, files []model.ShareRecord, expectedVersion int64) error {
	if files == nil {
		files = []model.ShareRecord{}
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.writeArray(ctx, tx, uid, "files", files, expectedVersion)
	})
}

// lockUser loads the document inside tx, creating an empty one first so
// appends work for users that have never written anything
func (db *DB) lockUser(ctx context.Context, tx *sql.Tx, uid string) (*model.UserDocument, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (uid, updated_at) VALUES (?, ?)`,
		uid, db.now().UnixMilli()); err != nil {
		return nil, err
	}
	return scanUser(tx.QueryRowContext(ctx, selectUser, uid))
}

func (db *DB) writeArray(ctx context.Context, tx *sql.Tx, uid, column string, value any, expectedVersion int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	// column is always one of the two literals above
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, version = version + 1, updated_at = ? WHERE uid = ? AND version = ?`,
		string(data), db.now().UnixMilli(), uid, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to write %s for %s: %w", column, uid, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE uid = ?`, uid).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrUserNotFound
	}
	return ErrVersionConflict
}
