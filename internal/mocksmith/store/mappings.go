package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mocksmith/internal/mocksmith/domain"
)

// ErrMappingNotFound is returned by GetMapping, DeleteMapping, and
// MoveMapping when no mapping with the given id exists.
var ErrMappingNotFound = errors.New("store: mapping not found")

// ListMappings returns all mappings in a workspace, oldest first. Stable
// ordering matters to the assistant's relevance ranking (ties keep insertion
// order), so the query sorts by created_at then id.
func (s *Store) ListMappings(ctx context.Context, workspace string) ([]*domain.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace, name, method, path, priority, enabled,
		       tags_json, headers_json, header_matchers_json, body_matcher_json,
		       response_status, response_headers_json, response_body, delay_json,
		       created_at, updated_at
		FROM mappings
		WHERE workspace = ?
		ORDER BY created_at ASC, id ASC
	`, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}
	return mappings, nil
}

// GetMapping retrieves a mapping by id.
func (s *Store) GetMapping(ctx context.Context, id string) (*domain.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace, name, method, path, priority, enabled,
		       tags_json, headers_json, header_matchers_json, body_matcher_json,
		       response_status, response_headers_json, response_body, delay_json,
		       created_at, updated_at
		FROM mappings
		WHERE id = ?
	`, id)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMappingNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SaveMapping upserts a mapping, stamping UpdatedAt (and CreatedAt on first
// insert) with the current time.
func (s *Store) SaveMapping(ctx context.Context, m *domain.Mapping) (*domain.Mapping, error) {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	tags, err := marshalNullable(m.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	headers, err := marshalNullable(m.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}
	matchers, err := marshalNullable(m.HeaderMatchers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header matchers: %w", err)
	}
	body, err := marshalNullable(m.BodyMatcher)
	if err != nil {
		return nil, fmt.Errorf("failed to encode body matcher: %w", err)
	}
	respHeaders, err := marshalNullable(m.ResponseHeaders)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response headers: %w", err)
	}
	delay, err := marshalNullable(m.Delay)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delay: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mappings (id, workspace, name, method, path, priority, enabled,
			tags_json, headers_json, header_matchers_json, body_matcher_json,
			response_status, response_headers_json, response_body, delay_json,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace             = excluded.workspace,
			name                  = excluded.name,
			method                = excluded.method,
			path                  = excluded.path,
			priority              = excluded.priority,
			enabled               = excluded.enabled,
			tags_json             = excluded.tags_json,
			headers_json          = excluded.headers_json,
			header_matchers_json  = excluded.header_matchers_json,
			body_matcher_json     = excluded.body_matcher_json,
			response_status       = excluded.response_status,
			response_headers_json = excluded.response_headers_json,
			response_body         = excluded.response_body,
			delay_json            = excluded.delay_json,
			updated_at            = excluded.updated_at
	`, m.ID, m.Workspace, m.Name, m.Method, m.Path, m.Priority, m.Enabled,
		tags, headers, matchers, body,
		m.ResponseStatus, respHeaders, m.ResponseBody, delay,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}
	return m, nil
}

// DeleteMapping removes a mapping by id.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// MoveMapping reassigns a mapping to another workspace. The target workspace
// must already exist (enforced by the foreign key).
func (s *Store) MoveMapping(ctx context.Context, id, targetWorkspace string) (*domain.Mapping, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings SET workspace = ?, updated_at = ? WHERE id = ?
	`, targetWorkspace, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to move mapping: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrMappingNotFound
	}
	return s.GetMapping(ctx, id)
}

// CountMappings returns the number of mappings in a workspace.
func (s *Store) CountMappings(ctx context.Context, workspace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mappings WHERE workspace = ?`, workspace,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count mappings: %w", err)
	}
	return n, nil
}

// CountAllMappings returns the number of mappings across every workspace.
func (s *Store) CountAllMappings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count mappings: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*domain.Mapping, error) {
	var (
		m           domain.Mapping
		enabled     int
		tags        sql.NullString
		headers     sql.NullString
		matchers    sql.NullString
		bodyMatcher sql.NullString
		respHeaders sql.NullString
		delay       sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.Workspace, &m.Name, &m.Method, &m.Path, &m.Priority, &enabled,
		&tags, &headers, &matchers, &bodyMatcher,
		&m.ResponseStatus, &respHeaders, &m.ResponseBody, &delay,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	m.Enabled = enabled != 0

	if err := unmarshalNullable(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := unmarshalNullable(headers, &m.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers: %w", err)
	}
	if err := unmarshalNullable(matchers, &m.HeaderMatchers); err != nil {
		return nil, fmt.Errorf("failed to decode header matchers: %w", err)
	}
	if err := unmarshalNullable(bodyMatcher, &m.BodyMatcher); err != nil {
		return nil, fmt.Errorf("failed to decode body matcher: %w", err)
	}
	if err := unmarshalNullable(respHeaders, &m.ResponseHeaders); err != nil {
		return nil, fmt.Errorf("failed to decode response headers: %w", err)
	}
	if err := unmarshalNullable(delay, &m.Delay); err != nil {
		return nil, fmt.Errorf("failed to decode delay: %w", err)
	}
	return &m, nil
}

// marshalNullable JSON-encodes v into a NullString, leaving it NULL for nil
// values so the database stays readable.
func marshalNullable(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case []string:
		if val == nil {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if val == nil {
			return sql.NullString{}, nil
		}
	case map[string]domain.Matcher:
		if val == nil {
			return sql.NullString{}, nil
		}
	case *domain.Matcher:
		if val == nil {
			return sql.NullString{}, nil
		}
	case *domain.Delay:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
