// Package store persists analyses, uploaded file records, generated bid
// documents and the participant card in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tenderprep/internal/document"
	"tenderprep/internal/prompt"
	"tenderprep/internal/store/migrations"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Analysis is one tender being prepared.
type Analysis struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ProcurementType string    `json:"procurement_type,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// File is an uploaded tender file attached to an analysis. Path is the key
// under which the bytes live in object storage.
type File struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Kind       string    `json:"kind,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GeneratedDocument is a bid document generated for an analysis. There is
// at most one per (analysis, document name); regenerating replaces it.
type GeneratedDocument struct {
	ID           string             `json:"id"`
	AnalysisID   string             `json:"analysis_id"`
	DocumentName string             `json:"document_name"`
	Content      *document.Document `json:"content"`
	HasTemplate  bool               `json:"has_template"`
	Mode         string             `json:"mode"`
	MatchedFiles []string           `json:"matched_files"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database under dataDir and applies pending
// migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, "tenderprep.db"))
}

// OpenPath opens the database file at path.
func OpenPath(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// ----- Analyses -----

// CreateAnalysis inserts a new analysis with a fresh ID.
func (s *Store) CreateAnalysis(ctx context.Context, title, procurementType string) (*Analysis, error) {
	now := s.now()
	a := &Analysis{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(title),
		ProcurementType: procurementType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if a.Title == "" {
		a.Title = "Новый тендер"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, title, procurement_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Title, a.ProcurementType, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	return a, nil
}

// GetAnalysis returns an analysis by ID.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, procurement_type, created_at, updated_at
		FROM analyses WHERE id = ?
	`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// ListAnalyses returns all analyses, most recently updated first.
func (s *Store) ListAnalyses(ctx context.Context) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, procurement_type, created_at, updated_at
		FROM analyses ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []*Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes an analysis together with its files, documents and
// bid amount.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) touch(ctx context.Context, analysisID string) {
	s.db.ExecContext(ctx, "UPDATE analyses SET updated_at = ? WHERE id = ?", s.now(), analysisID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*Analysis, error) {
	var a Analysis
	var created, updated sql.NullTime
	if err := row.Scan(&a.ID, &a.Title, &a.ProcurementType, &created, &updated); err != nil {
		return nil, err
	}
	a.CreatedAt = created.Time
	a.UpdatedAt = updated.Time
	return &a, nil
}

// ----- Files -----

// AddFile records an uploaded file. The analysis must exist.
func (s *Store) AddFile(ctx context.Context, f *File) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_files (id, analysis_id, name, path, size, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.AnalysisID, f.Name, f.Path, f.Size, f.Kind, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	s.touch(ctx, f.AnalysisID)
	return nil
}

// ListFiles returns the files of an analysis in upload order.
func (s *Store) ListFiles(ctx context.Context, analysisID string) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, name, path, size, kind, created_at
		FROM analysis_files WHERE analysis_id = ?
		ORDER BY created_at, rowid
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := []*File{}
	for rows.Next() {
		var f File
		var created sql.NullTime
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.Name, &f.Path, &f.Size, &f.Kind, &created); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.CreatedAt = created.Time
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ----- Generated documents -----

// SaveGeneratedDocument upserts a generated document keyed by analysis and
// document name. On conflict the ID and creation time are kept.
func (s *Store) SaveGeneratedDocument(ctx context.Context, d *GeneratedDocument) error {
	content, err := json.Marshal(d.Content)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	matched := d.MatchedFiles
	if matched == nil {
		matched = []string{}
	}
	files, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("encode matched files: %w", err)
	}

	now := s.now()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_documents
			(id, analysis_id, document_name, content, has_template, mode, matched_files, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id, document_name) DO UPDATE SET
			content = excluded.content,
			has_template = excluded.has_template,
			mode = excluded.mode,
			matched_files = excluded.matched_files,
			updated_at = excluded.updated_at
	`, d.ID, d.AnalysisID, d.DocumentName, string(content), d.HasTemplate, d.Mode, string(files), now, now)
	if err != nil {
		return fmt.Errorf("save generated document: %w", err)
	}
	s.touch(ctx, d.AnalysisID)

	saved, err := s.GetGeneratedDocument(ctx, d.AnalysisID, d.DocumentName)
	if err != nil {
		return err
	}
	*d = *saved
	return nil
}

// GetGeneratedDocument returns the document generated under documentName.
func (s *Store) GetGeneratedDocument(ctx context.Context, analysisID, documentName string) (*GeneratedDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, analysis_id, document_name, content, has_template, mode, matched_files, created_at, updated_at
		FROM generated_documents WHERE analysis_id = ? AND document_name = ?
	`, analysisID, documentName)
	d, err := scanGenerated(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generated document: %w", err)
	}
	return d, nil
}

// ListGeneratedDocuments returns all documents of an analysis, newest first.
func (s *Store) ListGeneratedDocuments(ctx context.Context, analysisID string) ([]*GeneratedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, document_name, content, has_template, mode, matched_files, created_at, updated_at
		FROM generated_documents WHERE analysis_id = ?
		ORDER BY updated_at DESC
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list generated documents: %w", err)
	}
	defer rows.Close()

	out := []*GeneratedDocument{}
	for rows.Next() {
		d, err := scanGenerated(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generated document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanGenerated(row scanner) (*GeneratedDocument, error) {
	var d GeneratedDocument
	var content, files string
	var created, updated sql.NullTime
	if err := row.Scan(&d.ID, &d.AnalysisID, &d.DocumentName, &content, &d.HasTemplate, &d.Mode, &files, &created, &updated); err != nil {
		return nil, err
	}
	d.Content = &document.Document{}
	if err := json.Unmarshal([]byte(content), d.Content); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(files), &d.MatchedFiles); err != nil {
		d.MatchedFiles = nil
	}
	if d.MatchedFiles == nil {
		d.MatchedFiles = []string{}
	}
	d.CreatedAt = created.Time
	d.UpdatedAt = updated.Time
	return &d, nil
}

// ----- Participant card and bid amounts -----

// participantID is the row that holds the single company card.
const participantID = "default"

// SaveParticipant stores the company card, replacing the previous one.
func (s *Store) SaveParticipant(ctx context.Context, p *prompt.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO companies (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, participantID, string(data), s.now())
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

// Participant returns the stored company card.
func (s *Store) Participant(ctx context.Context) (*prompt.Participant, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM companies WHERE id = ?", participantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	var p prompt.Participant
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode participant: %w", err)
	}
	return &p, nil
}

// SaveBidAmount stores the bid amount of an analysis.
func (s *Store) SaveBidAmount(ctx context.Context, analysisID string, b *prompt.BidAmount) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bid amount: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bid_amounts (analysis_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, analysisID, string(data), s.now())
	if err != nil {
		return fmt.Errorf("save bid amount: %w", err)
	}
	s.touch(ctx, analysisID)
	return nil
}

// BidAmount returns the bid amount stored for an analysis.
func (s *Store) BidAmount(ctx context.Context, analysisID string) (*prompt.BidAmount, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM bid_amounts WHERE analysis_id = ?", analysisID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bid amount: %w", err)
	}
	var b prompt.BidAmount
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("decode bid amount: %w", err)
	}
	return &b, nil
}
