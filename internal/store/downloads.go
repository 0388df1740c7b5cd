package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateDownload inserts a new download row in StatusQueued and returns it with
// ID/CreatedAt/UpdatedAt populated.
func (s *Store) CreateDownload(url, title string, category Category, season, episode *int) (*Download, error) {
	now := time.Now().UTC()
	d := &Download{
		ID:        uuid.NewString(),
		URL:       url,
		Title:     title,
		Category:  category,
		Season:    season,
		Episode:   episode,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(`INSERT INTO downloads
		(id, url, title, category, season, episode, status, progress, file_path, error,
		 moved_to_library, library_id, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, 0, NULL, 0, ?, ?)`,
		d.ID, d.URL, d.Title, d.Category, d.Season, d.Episode, d.Status,
		d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDownload returns a single download by ID.
func (s *Store) GetDownload(id string) (*Download, error) {
	row := s.db.QueryRow(`SELECT id, url, title, category, season, episode, status, progress,
		file_path, error, moved_to_library, library_id, attempts, created_at, updated_at
		FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{Entity: "download", ID: id}
	}
	return d, err
}

// ListDownloads returns all downloads, newest first. If status != "" it filters by status.
func (s *Store) ListDownloads(status DownloadStatus) ([]*Download, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.Query(`SELECT id, url, title, category, season, episode, status, progress,
			file_path, error, moved_to_library, library_id, attempts, created_at, updated_at
			FROM downloads WHERE status = ? ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.db.Query(`SELECT id, url, title, category, season, episode, status, progress,
			file_path, error, moved_to_library, library_id, attempts, created_at, updated_at
			FROM downloads ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDownloadProgress sets status/progress and bumps updated_at.
func (s *Store) UpdateDownloadProgress(id string, status DownloadStatus, progress int) error {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, progress = ?, updated_at = ? WHERE id = ?`,
		status, progress, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// CompleteDownload marks a download completed with its final file path.
func (s *Store) CompleteDownload(id, filePath string) error {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, progress = 100, file_path = ?,
		error = NULL, updated_at = ? WHERE id = ?`,
		StatusCompleted, filePath, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// FailDownload marks a download failed with a message and increments attempts.
func (s *Store) FailDownload(id, message string) error {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, error = ?, attempts = attempts + 1,
		updated_at = ? WHERE id = ?`,
		StatusFailed, message, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// RequeueDownload resets a download to queued, for retry or startup recovery.
func (s *Store) RequeueDownload(id string) error {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, progress = 0, updated_at = ? WHERE id = ?`,
		StatusQueued, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// CancelDownload marks a download cancelled with the standard "Cancelled by
// user" message.
func (s *Store) CancelDownload(id string) error {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusCancelled, "Cancelled by user", time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// SetDownloadLibrary records that a completed download was moved into a library.
func (s *Store) SetDownloadLibrary(id, libraryID string) error {
	res, err := s.db.Exec(`UPDATE downloads SET moved_to_library = 1, library_id = ?, updated_at = ?
		WHERE id = ?`, libraryID, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// SetDownloadTitle updates the title, used to adopt a tool-reported title
// when the caller did not supply one at enqueue time.
func (s *Store) SetDownloadTitle(id, title string) error {
	res, err := s.db.Exec(`UPDATE downloads SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// DownloadPatch carries the user-editable fields of PATCH /downloads/{id}.
// Nil fields are left unchanged.
type DownloadPatch struct {
	Category *Category
	Title    *string
	Season   *int
	Episode  *int
}

// UpdateDownload applies a partial update to a download's editable fields.
func (s *Store) UpdateDownload(id string, patch DownloadPatch) error {
	d, err := s.GetDownload(id)
	if err != nil {
		return err
	}
	if patch.Category != nil {
		d.Category = *patch.Category
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Season != nil {
		d.Season = patch.Season
	}
	if patch.Episode != nil {
		d.Episode = patch.Episode
	}
	res, err := s.db.Exec(`UPDATE downloads SET category = ?, title = ?, season = ?, episode = ?,
		updated_at = ? WHERE id = ?`,
		d.Category, d.Title, d.Season, d.Episode, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// SetDownloadFilePath rewrites file_path and moved_to_library, used by
// move/unmove after the Media Organizer relocates the file on disk.
func (s *Store) SetDownloadFilePath(id, filePath string, movedToLibrary bool, libraryID *string) error {
	res, err := s.db.Exec(`UPDATE downloads SET file_path = ?, moved_to_library = ?, library_id = ?,
		updated_at = ? WHERE id = ?`,
		filePath, movedToLibrary, libraryID, time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "download", id)
}

// DeleteDownload removes a download row (the caller is responsible for any file cleanup).
func (s *Store) DeleteDownload(id string) error {
	res, err := s.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	return checkUpdated(res, err, "download", id)
}

// RecoverInFlightDownloads requeues any row left in StatusDownloading, e.g. after a crash
// or restart mid-transfer. Returns the number of rows recovered.
func (s *Store) RecoverInFlightDownloads() (int, error) {
	res, err := s.db.Exec(`UPDATE downloads SET status = ?, updated_at = ? WHERE status = ?`,
		StatusQueued, time.Now().UTC().Format(time.RFC3339Nano), StatusDownloading)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*Download, error) {
	var d Download
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.URL, &d.Title, &d.Category, &d.Season, &d.Episode,
		&d.Status, &d.Progress, &d.FilePath, &d.Error, &d.MovedToLibrary, &d.LibraryID,
		&d.Attempts, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func checkUpdated(res sql.Result, err error, entity, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound{Entity: entity, ID: id}
	}
	return nil
}
