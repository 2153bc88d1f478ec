package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavel-fokin/form-data/internal/uploads"
	_ "modernc.org/sqlite"
)

// Repository implements uploads.Journal using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}

	// Initialize database schema
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		content_type TEXT NOT NULL,
		fields INTEGER NOT NULL,
		size INTEGER NOT NULL,
		status INTEGER,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create uploads table: %w", err)
	}

	return nil
}

// Create stores an upload record
func (r *Repository) Create(upload *uploads.Upload) error {
	query := `
	INSERT INTO uploads (id, target, content_type, fields, size, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var status sql.NullInt64
	if upload.Status != 0 {
		status = sql.NullInt64{Int64: int64(upload.Status), Valid: true}
	}

	_, err := r.db.Exec(query,
		upload.ID,
		upload.Target,
		upload.ContentType,
		upload.Fields,
		upload.Size,
		status,
		upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}

	return nil
}

// FindByID retrieves an upload record by ID
func (r *Repository) FindByID(id string) (*uploads.Upload, error) {
	query := `
	SELECT id, target, content_type, fields, size, status, created_at
	FROM uploads
	WHERE id = ?
	`

	upload, err := scanUpload(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, uploads.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find upload: %w", err)
	}

	return upload, nil
}

// List retrieves all upload records, newest first
func (r *Repository) List() ([]*uploads.Upload, error) {
	query := `
	SELECT id, target, content_type, fields, size, status, created_at
	FROM uploads
	ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var list []*uploads.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		list = append(list, upload)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", err)
	}

	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*uploads.Upload, error) {
	var upload uploads.Upload
	var status sql.NullInt64
	err := row.Scan(
		&upload.ID,
		&upload.Target,
		&upload.ContentType,
		&upload.Fields,
		&upload.Size,
		&status,
		&upload.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if status.Valid {
		upload.Status = int(status.Int64)
	}
	return &upload, nil
}
