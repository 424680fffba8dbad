package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderprep/internal/document"
	"tenderprep/internal/prompt"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpen_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, filepath.Join(dir, "tenderprep.db"))
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenPath(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenPath(path)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 2, n)
}

// ========== Analyses ==========

func TestAnalysis_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAnalysis(ctx, "  Поставка мебели ", "44-fz")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "Поставка мебели", a.Title)

	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Поставка мебели", got.Title)
	assert.Equal(t, "44-fz", got.ProcurementType)
	assert.False(t, got.CreatedAt.IsZero())

	b, err := s.CreateAnalysis(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Новый тендер", b.Title)

	list, err := s.ListAnalyses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "most recently updated first")

	require.NoError(t, s.DeleteAnalysis(ctx, a.ID))
	_, err = s.GetAnalysis(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteAnalysis(ctx, a.ID), ErrNotFound)
}

// ========== Files ==========

func TestFiles_AddAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a, err := s.CreateAnalysis(ctx, "Тендер", "")
	require.NoError(t, err)

	for _, name := range []string{"izveshchenie.pdf", "forma_2.docx"} {
		require.NoError(t, s.AddFile(ctx, &File{AnalysisID: a.ID, Name: name, Path: a.ID + "/" + name, Size: 10}))
	}

	files, err := s.ListFiles(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "izveshchenie.pdf", files[0].Name)
	assert.Equal(t, "forma_2.docx", files[1].Name)
	assert.NotEmpty(t, files[0].ID)

	other, err := s.ListFiles(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFiles_RequireAnalysis(t *testing.T) {
	s := setupTestStore(t)
	err := s.AddFile(context.Background(), &File{AnalysisID: "missing", Name: "a.pdf", Path: "x"})
	assert.Error(t, err)
}

// ========== Generated documents ==========

func TestGeneratedDocument_UpsertByName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a, err := s.CreateAnalysis(ctx, "Тендер", "")
	require.NoError(t, err)

	first := &GeneratedDocument{
		AnalysisID:   a.ID,
		DocumentName: "Анкета участника",
		Content:      &document.Document{Title: "Анкета", Sections: []document.Section{{Content: "v1"}}},
		HasTemplate:  true,
		Mode:         "template",
		MatchedFiles: []string{"forma_2.docx"},
	}
	require.NoError(t, s.SaveGeneratedDocument(ctx, first))
	id := first.ID

	second := &GeneratedDocument{
		AnalysisID:   a.ID,
		DocumentName: "Анкета участника",
		Content:      &document.Document{Title: "Анкета", Sections: []document.Section{{Content: "v2"}}},
		Mode:         "free",
	}
	require.NoError(t, s.SaveGeneratedDocument(ctx, second))
	assert.Equal(t, id, second.ID, "regeneration keeps the row")

	got, err := s.GetGeneratedDocument(ctx, a.ID, "Анкета участника")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content.Sections[0].Content)
	assert.False(t, got.HasTemplate)
	assert.Equal(t, "free", got.Mode)
	assert.Equal(t, []string{}, got.MatchedFiles)

	require.NoError(t, s.SaveGeneratedDocument(ctx, &GeneratedDocument{
		AnalysisID:   a.ID,
		DocumentName: "Согласие",
		Content:      &document.Document{Title: "Согласие", SignatureBlock: "Подпись"},
	}))
	docs, err := s.ListGeneratedDocuments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Согласие", docs[0].DocumentName)

	_, err = s.GetGeneratedDocument(ctx, a.ID, "Нет такого")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAnalysis_Cascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a, err := s.CreateAnalysis(ctx, "Тендер", "")
	require.NoError(t, err)
	require.NoError(t, s.AddFile(ctx, &File{AnalysisID: a.ID, Name: "a.pdf", Path: "p"}))
	require.NoError(t, s.SaveGeneratedDocument(ctx, &GeneratedDocument{
		AnalysisID: a.ID, DocumentName: "Анкета",
		Content: &document.Document{Title: "Анкета", SignatureBlock: "x"},
	}))
	require.NoError(t, s.SaveBidAmount(ctx, a.ID, &prompt.BidAmount{Amount: 100}))

	require.NoError(t, s.DeleteAnalysis(ctx, a.ID))

	files, err := s.ListFiles(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
	docs, err := s.ListGeneratedDocuments(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	_, err = s.BidAmount(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ========== Participant and bid amount ==========

func TestParticipant_SaveAndLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Participant(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveParticipant(ctx, &prompt.Participant{FullName: "ООО Ромашка", INN: "7701234567"}))
	require.NoError(t, s.SaveParticipant(ctx, &prompt.Participant{FullName: "ООО Лютик"}))

	p, err := s.Participant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ООО Лютик", p.FullName)
	assert.Empty(t, p.INN)
}

func TestBidAmount_SaveAndLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a, err := s.CreateAnalysis(ctx, "Тендер", "")
	require.NoError(t, err)

	b := &prompt.BidAmount{Amount: 1_220_000, VATRate: "22"}
	b.Complete()
	require.NoError(t, s.SaveBidAmount(ctx, a.ID, b))

	got, err := s.BidAmount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, *b, *got)
}
