package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mocksmith/internal/mocksmith/domain"
)

// ErrWorkspaceNotFound is returned when no workspace with the given name
// exists.
var ErrWorkspaceNotFound = errors.New("store: workspace not found")

// ErrWorkspaceNotEmpty is returned by DeleteWorkspace when the workspace
// still contains mappings. Callers surface it as a validation conflict with
// a delete-dependents-first remediation.
var ErrWorkspaceNotEmpty = errors.New("store: workspace still contains mappings")

// CreateWorkspace inserts a new workspace. Creating a workspace that already
// exists is an error.
func (s *Store) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, ws.Name, ws.Description, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by name.
func (s *Store) GetWorkspace(ctx context.Context, name string) (*domain.Workspace, error) {
	ws := &domain.Workspace{}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, description, created_at, updated_at
		FROM workspaces WHERE name = ?
	`, name).Scan(&ws.Name, &ws.Description, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// ListWorkspaces returns all workspaces, oldest first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, created_at, updated_at
		FROM workspaces ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*domain.Workspace
	for rows.Next() {
		ws := &domain.Workspace{}
		if err := rows.Scan(&ws.Name, &ws.Description, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return workspaces, nil
}

// DeleteWorkspace removes an empty workspace. Deleting a workspace that
// still contains mappings returns ErrWorkspaceNotEmpty.
func (s *Store) DeleteWorkspace(ctx context.Context, name string) error {
	n, err := s.CountMappings(ctx, name)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d mapping(s) in %q", ErrWorkspaceNotEmpty, n, name)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrWorkspaceNotFound
	}
	return nil
}

// EnsureWorkspace creates the workspace if it does not already exist.
// Used at startup for the default workspace and by mapping creation so a
// first mapping never fails on a missing namespace row.
func (s *Store) EnsureWorkspace(ctx context.Context, name string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (name, description, created_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure workspace: %w", err)
	}
	return nil
}
