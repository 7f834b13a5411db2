package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zombar/litmatrix/internal/models"
)

// Get returns the value stored under namespace/key
func (db *DB) Get(namespace, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow(db.rebind(`
		SELECT value FROM kv WHERE namespace = ? AND key = ?
	`), namespace, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Set inserts or overwrites namespace/key
func (db *DB) Set(namespace, key, value string) error {
	_, err := db.conn.Exec(db.rebind(`
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), namespace, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes namespace/key; deleting a missing key is not an error
func (db *DB) Delete(namespace, key string) error {
	if _, err := db.conn.Exec(db.rebind(`DELETE FROM kv WHERE namespace = ? AND key = ?`), namespace, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// DeleteNamespace removes every key in namespace
func (db *DB) DeleteNamespace(namespace string) error {
	if _, err := db.conn.Exec(db.rebind(`DELETE FROM kv WHERE namespace = ?`), namespace); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", namespace, err)
	}
	return nil
}

// CreateExportJob records a new export job
func (db *DB) CreateExportJob(job *models.ExportJob) error {
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := db.conn.Exec(db.rebind(`
		INSERT INTO export_jobs (id, session_id, format, status, storage_path, file_name, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), job.ID, job.SessionID, job.Format, job.Status, job.StoragePath, job.FileName, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert export job: %w", err)
	}
	return nil
}

// GetExportJob retrieves an export job by ID
func (db *DB) GetExportJob(id string) (*models.ExportJob, error) {
	job := &models.ExportJob{ID: id}
	err := db.conn.QueryRow(db.rebind(`
		SELECT session_id, format, status, storage_path, file_name, error, created_at, updated_at
		FROM export_jobs
		WHERE id = ?
	`), id).Scan(&job.SessionID, &job.Format, &job.Status, &job.StoragePath, &job.FileName, &job.Error, &job.CreatedAt, &job.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("export job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}
	return job, nil
}

// CompleteExportJob marks a job finished with its stored artifact
func (db *DB) CompleteExportJob(id, storagePath, fileName string) error {
	return db.updateExportJob(id, models.ExportStatusCompleted, storagePath, fileName, "")
}

// FailExportJob marks a job failed with a user visible reason
func (db *DB) FailExportJob(id, reason string) error {
	return db.updateExportJob(id, models.ExportStatusFailed, "", "", reason)
}

func (db *DB) updateExportJob(id, status, storagePath, fileName, reason string) error {
	res, err := db.conn.Exec(db.rebind(`
		UPDATE export_jobs
		SET status = ?, storage_path = ?, file_name = ?, error = ?, updated_at = ?
		WHERE id = ?
	`), status, storagePath, fileName, reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update export job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("export job %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExportJobsForSession drops job records belonging to a session
func (db *DB) DeleteExportJobsForSession(sessionID string) ([]models.ExportJob, error) {
	rows, err := db.conn.Query(db.rebind(`
		SELECT id, storage_path FROM export_jobs WHERE session_id = ?
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}

	var jobs []models.ExportJob
	for rows.Next() {
		job := models.ExportJob{SessionID: sessionID}
		if err := rows.Scan(&job.ID, &job.StoragePath); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan export job: %w", err)
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate export jobs: %w", err)
	}

	if _, err := db.conn.Exec(db.rebind(`DELETE FROM export_jobs WHERE session_id = ?`), sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete export jobs: %w", err)
	}
	return jobs, nil
}
