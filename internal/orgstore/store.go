package orgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var ErrNotFound = errors.New("organization not found")

// Organization is a billed customer account.
type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// User is an account belonging to an organization.
type User struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Email          string
	CreatedAt      time.Time
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

const getOrganization = `SELECT id, name, created_at FROM organizations WHERE id = $1`

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	var (
		pgID      pgtype.UUID
		org       Organization
		createdAt pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, getOrganization, toPgUUID(id)).Scan(&pgID, &org.Name, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, fmt.Errorf("get organization: %w", err)
	}
	org.ID = uuid.UUID(pgID.Bytes)
	org.CreatedAt = createdAt.Time
	return org, nil
}

const listOrganizationUsers = `SELECT id, organization_id, name, email, created_at
FROM organization_users
WHERE organization_id = $1 AND created_at < $2
ORDER BY created_at DESC, id`

// ListOrganizationUsers returns the users created before createdBefore,
// newest first.
func (s *Store) ListOrganizationUsers(ctx context.Context, organizationID uuid.UUID, createdBefore time.Time) ([]User, error) {
	rows, err := s.db.Query(ctx, listOrganizationUsers, toPgUUID(organizationID), createdBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("list organization users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			id, orgID pgtype.UUID
			createdAt pgtype.Timestamptz
			user      User
		)
		if err := rows.Scan(&id, &orgID, &user.Name, &user.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("scan organization user: %w", err)
		}
		if !createdAt.Valid {
			return nil, fmt.Errorf("organization user %s has no created_at", uuid.UUID(id.Bytes))
		}
		user.ID = uuid.UUID(id.Bytes)
		user.OrganizationID = uuid.UUID(orgID.Bytes)
		user.CreatedAt = createdAt.Time
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organization users: %w", err)
	}
	return users, nil
}

const createOrganization = `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`

func (s *Store) CreateOrganization(ctx context.Context, name string, createdAt time.Time) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, errors.New("organization name required")
	}
	org := Organization{ID: uuid.New(), Name: name, CreatedAt: createdAt.UTC()}
	if _, err := s.db.Exec(ctx, createOrganization, toPgUUID(org.ID), org.Name, org.CreatedAt); err != nil {
		return Organization{}, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

const addOrganizationUser = `INSERT INTO organization_users (id, organization_id, name, email, created_at)
VALUES ($1, $2, $3, $4, $5)`

func (s *Store) AddUser(ctx context.Context, organizationID uuid.UUID, name, email string, createdAt time.Time) (User, error) {
	if createdAt.IsZero() {
		return User{}, errors.New("user created_at required")
	}
	user := User{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           strings.TrimSpace(name),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		CreatedAt:      createdAt.UTC(),
	}
	_, err := s.db.Exec(ctx, addOrganizationUser, toPgUUID(user.ID), toPgUUID(organizationID), user.Name, user.Email, user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("add organization user: %w", err)
	}
	return user, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
