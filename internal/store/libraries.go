package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateLibrary inserts a new library row.
func (s *Store) CreateLibrary(name, path string, typ Category) (*Library, error) {
	l := &Library{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO libraries (id, name, path, type, plex_section_id, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)`,
		l.ID, l.Name, l.Path, l.Type, l.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetLibrary returns a single library by ID.
func (s *Store) GetLibrary(id string) (*Library, error) {
	row := s.db.QueryRow(`SELECT id, name, path, type, plex_section_id, created_at
		FROM libraries WHERE id = ?`, id)
	l, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{Entity: "library", ID: id}
	}
	return l, err
}

// ListLibraries returns all libraries.
func (s *Store) ListLibraries() ([]*Library, error) {
	rows, err := s.db.Query(`SELECT id, name, path, type, plex_section_id, created_at
		FROM libraries ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetLibraryPlexSection records the Plex section ID a library was registered under.
func (s *Store) SetLibraryPlexSection(id string, sectionID int) error {
	res, err := s.db.Exec(`UPDATE libraries SET plex_section_id = ? WHERE id = ?`, sectionID, id)
	return checkUpdated(res, err, "library", id)
}

// DeleteLibrary removes a library row. The caller decides whether to also remove its contents.
func (s *Store) DeleteLibrary(id string) error {
	res, err := s.db.Exec(`DELETE FROM libraries WHERE id = ?`, id)
	return checkUpdated(res, err, "library", id)
}

func scanLibrary(row rowScanner) (*Library, error) {
	var l Library
	var createdAt string
	if err := row.Scan(&l.ID, &l.Name, &l.Path, &l.Type, &l.PlexSectionID, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	return &l, nil
}
