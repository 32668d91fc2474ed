/*
accounts.go - Login accounts and the audit log
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fibreline/piecework-engine/engine"
)

// =============================================================================
// APP USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u engine.AppUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, email, password_hash, role, factory_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, u.PasswordHash, string(u.Role),
		encNullUUID(u.FactoryID), u.Active, encTime(u.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("email %q already registered: %w", u.Email, engine.ErrConflict)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*engine.AppUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, factory_id, active, created_at
		FROM app_users WHERE id = ?`, id.String())
	return scanUserRow(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*engine.AppUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, factory_id, active, created_at
		FROM app_users WHERE email = ?`, email)
	return scanUserRow(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]engine.AppUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, role, factory_id, active, created_at
		FROM app_users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []engine.AppUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUserRow(row *sql.Row) (*engine.AppUser, error) {
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row rowScanner) (*engine.AppUser, error) {
	var (
		u         engine.AppUser
		idStr     string
		role      string
		factoryID sql.NullString
		createdAt string
	)
	if err := row.Scan(&idStr, &u.Email, &u.PasswordHash, &role, &factoryID, &u.Active, &createdAt); err != nil {
		return nil, err
	}
	u.ID = decUUID(idStr)
	u.Role = engine.Role(role)
	u.FactoryID = decNullUUID(factoryID)
	u.CreatedAt = decTime(createdAt)
	return &u, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Record appends one audit event. Called outside the mutating transaction;
// a failure here never rolls back the business effect.
func (s *Store) Record(ctx context.Context, e engine.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (at, actor_id, actor_role, action, entity_type, entity_id, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		encTime(e.At), e.ActorID.String(), string(e.ActorRole),
		string(e.Action), e.EntityType, e.EntityID.String(), metadataJSON,
	)
	return err
}

func (s *Store) QueryAudit(ctx context.Context, f engine.AuditFilter) ([]engine.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT at, actor_id, actor_role, action, entity_type, entity_id, metadata_json
		FROM audit_logs`
	var conds []string
	var args []any
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != nil {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID.String())
	}
	if len(conds) > 0 {
		query += " WHERE " + conds[0]
		for _, c := range conds[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY seq DESC"

	limit := f.Limit
	if limit < 1 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []engine.AuditEvent
	for rows.Next() {
		var (
			e            engine.AuditEvent
			at           string
			actorID      string
			role, action string
			entityID     string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&at, &actorID, &role, &action, &e.EntityType, &entityID, &metadataJSON); err != nil {
			return nil, err
		}
		e.At = decTime(at)
		e.ActorID = decUUID(actorID)
		e.ActorRole = engine.Role(role)
		e.Action = engine.AuditAction(action)
		e.EntityID = decUUID(entityID)
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
