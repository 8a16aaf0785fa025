package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"chatsync/models"
)

var (
	// ErrNoIdentity is returned by Load when nobody is signed in.
	ErrNoIdentity = errors.New("database: no stored identity")
	// ErrSealed is returned when the stored token cannot be opened with the
	// configured secret.
	ErrSealed = errors.New("database: stored token does not open with this secret")
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// scrypt cost parameters. Tests lower N to keep runs fast.
var scryptN = 1 << 15

// Store keeps the single signed-in identity in SQLite. The token is sealed
// with secretbox under a key derived from the configured secret.
type Store struct {
	db     *sql.DB
	secret []byte
}

// Open opens (or creates) the identity database at path.
func Open(path, secret string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, secret: []byte(secret)}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	tables := `
	CREATE TABLE IF NOT EXISTS identity (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		username TEXT NOT NULL,
		token BLOB NOT NULL,
		salt BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(tables); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored identity.
func (s *Store) Save(ctx context.Context, id models.Identity) error {
	if !id.Valid() {
		return fmt.Errorf("save identity: username and token are required")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	sealed, err := s.seal([]byte(id.Token), salt)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO identity (id, username, token, salt, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			salt = excluded.salt,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id.Username, sealed, salt, time.Now().Unix()); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load returns the stored identity or ErrNoIdentity.
func (s *Store) Load(ctx context.Context) (*models.Identity, error) {
	var (
		username     string
		sealed, salt []byte
	)
	query := `SELECT username, token, salt FROM identity WHERE id = 1`
	err := s.db.QueryRowContext(ctx, query).Scan(&username, &sealed, &salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	token, err := s.open(sealed, salt)
	if err != nil {
		return nil, err
	}
	return &models.Identity{Username: username, Token: string(token)}, nil
}

// Clear removes the stored identity. Clearing an empty store is not an
// error.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity`); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *Store) key(salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key(s.secret, salt, scryptN, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

func (s *Store) seal(plain, salt []byte) ([]byte, error) {
	key, err := s.key(salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, key), nil
}

func (s *Store) open(sealed, salt []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealed
	}
	key, err := s.key(salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}
