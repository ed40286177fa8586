package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Session keys.
const (
	keyAuthToken       = "auth_token"
	keyUser            = "user"
	keySelectedCompany = "selected_company"
)

// AllCompanies is the stored company selection meaning every company.
const AllCompanies = "null"

// User is the serialized logged-in user.
type User struct {
	ID       string `json:"_id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// SessionStore persists the login session. Values are read from disk on every
// call so that a login or logout in another process is seen immediately.
type SessionStore struct {
	conn *Connection
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(conn *Connection) *SessionStore {
	return &SessionStore{conn: conn}
}

// Token returns the stored bearer token, empty when logged out.
func (s *SessionStore) Token() (string, error) {
	return s.get(context.Background(), keyAuthToken)
}

// SetToken stores the bearer token.
func (s *SessionStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	return s.set(ctx, keyAuthToken, token)
}

// User returns the stored user, nil when none is stored.
func (s *SessionStore) User(ctx context.Context) (*User, error) {
	raw, err := s.get(ctx, keyUser)
	if err != nil || raw == "" {
		return nil, err
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &user, nil
}

// SetUser stores the user.
func (s *SessionStore) SetUser(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return s.set(ctx, keyUser, string(data))
}

// SelectedCompany returns the last selected company id, AllCompanies when
// none was selected.
func (s *SessionStore) SelectedCompany(ctx context.Context) (string, error) {
	id, err := s.get(ctx, keySelectedCompany)
	if err != nil {
		return "", err
	}
	if id == "" {
		return AllCompanies, nil
	}
	return id, nil
}

// SetSelectedCompany stores the company selection. An empty id selects all
// companies.
func (s *SessionStore) SetSelectedCompany(ctx context.Context, id string) error {
	if id == "" {
		id = AllCompanies
	}
	return s.set(ctx, keySelectedCompany, id)
}

// Clear removes the whole session (logout).
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *SessionStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session %s: %w", key, err)
	}
	return value, nil
}

func (s *SessionStore) set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO session (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write session %s: %w", key, err)
	}
	return nil
}
