package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) UpsertFolder(ctx context.Context, folder FolderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, is_expanded)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, is_expanded=EXCLUDED.is_expanded, updated_at=NOW()
	`, folder.ID, folder.Name, folder.IsExpanded)
	if err != nil {
		return fmt.Errorf("upsert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, folderID, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE folders SET name=$2, updated_at=NOW() WHERE id=$1`, folderID, name)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetFolderExpanded(ctx context.Context, folderID string, expanded bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE folders SET is_expanded=$2, updated_at=NOW() WHERE id=$1`, folderID, expanded)
	if err != nil {
		return fmt.Errorf("set folder expanded: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertNote(ctx context.Context, note NoteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, folder_id, title, kind, template_type, source_note_id, content, plain_text)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			folder_id=EXCLUDED.folder_id,
			title=EXCLUDED.title,
			content=EXCLUDED.content,
			plain_text=EXCLUDED.plain_text,
			updated_at=NOW()
	`, note.ID, note.FolderID, note.Title, note.Kind, note.TemplateType, note.SourceNoteID, note.Content, note.PlainText)
	if err != nil {
		return fmt.Errorf("upsert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameNote(ctx context.Context, noteID, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notes SET title=$2, updated_at=NOW() WHERE id=$1`, noteID, title)
	if err != nil {
		return fmt.Errorf("rename note: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNoteContent(ctx context.Context, noteID string, content []byte, plainText string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notes SET content=$2, plain_text=$3, updated_at=NOW() WHERE id=$1`, noteID, content, plainText)
	if err != nil {
		return fmt.Errorf("update note content: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// ListFolders returns all folders ordered by creation time, oldest first, so
// rehydration reproduces the original sidebar order.
func (s *PostgresStore) ListFolders(ctx context.Context) ([]FolderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_expanded, created_at, updated_at
		FROM folders
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []FolderRecord
	for rows.Next() {
		var folder FolderRecord
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.IsExpanded, &folder.CreatedAt, &folder.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

func (s *PostgresStore) ListNotes(ctx context.Context) ([]NoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, title, kind, COALESCE(template_type, ''), COALESCE(source_note_id, ''),
			content, plain_text, created_at, updated_at
		FROM notes
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []NoteRecord
	for rows.Next() {
		var note NoteRecord
		if err := rows.Scan(&note.ID, &note.FolderID, &note.Title, &note.Kind, &note.TemplateType,
			&note.SourceNoteID, &note.Content, &note.PlainText, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
