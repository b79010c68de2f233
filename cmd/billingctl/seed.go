package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ncecere/seat_billing/internal/orgstore"
)

type seedFile struct {
	Organizations []seedOrganization `json:"organizations"`
}

type seedOrganization struct {
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	Users     []seedUser `json:"users"`
}

type seedUser struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type organizationSeeder interface {
	CreateOrganization(ctx context.Context, name string, createdAt time.Time) (orgstore.Organization, error)
	AddUser(ctx context.Context, organizationID uuid.UUID, name, email string, createdAt time.Time) (orgstore.User, error)
}

func readSeedFile(stdin io.Reader, path string) (seedFile, error) {
	r, err := openInput(stdin, path)
	if err != nil {
		return seedFile{}, err
	}
	defer r.Close()

	var seed seedFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return seedFile{}, fmt.Errorf("decode seed file: %w", err)
	}
	if len(seed.Organizations) == 0 {
		return seedFile{}, fmt.Errorf("seed file has no organizations")
	}
	return seed, nil
}

// seedOrganizations creates every organization and its users, printing the
// generated ids so they can be used as client_id.
func seedOrganizations(ctx context.Context, seeder organizationSeeder, seed seedFile, out io.Writer, now time.Time) error {
	for _, entry := range seed.Organizations {
		created := now
		if entry.CreatedAt != nil {
			created = *entry.CreatedAt
		}
		org, err := seeder.CreateOrganization(ctx, entry.Name, created)
		if err != nil {
			return fmt.Errorf("seed organization %q: %w", entry.Name, err)
		}
		for _, user := range entry.Users {
			if strings.TrimSpace(user.Email) == "" {
				return fmt.Errorf("seed organization %q: user %q has no email", entry.Name, user.Name)
			}
			if _, err := seeder.AddUser(ctx, org.ID, user.Name, user.Email, user.CreatedAt); err != nil {
				return fmt.Errorf("seed user %q: %w", user.Email, err)
			}
		}
		fmt.Fprintf(out, "%s\t%s\t%d users\n", org.ID, org.Name, len(entry.Users))
	}
	return nil
}
