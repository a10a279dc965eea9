// Package bootstrap seeds the default domain and the built-in roles.
//
// A seed file lists domains and roles:
//
//	domains:
//	  - id: default
//	    name: Default
//	    description: The default domain
//	roles:
//	  - name: admin
//	  - name: reader
//
// Applying a seed is idempotent: existing domains are matched by ID and
// existing roles by name, and neither is modified.
package bootstrap

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	domainModels "github.com/cernops/keystone/internal/domains/models"
	domainService "github.com/cernops/keystone/internal/domains/service"
	identityModels "github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/pkg/ids"
)

//go:embed default.yaml
var defaultSeed []byte

type DomainSeed struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

type RoleSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Seed struct {
	Domains []DomainSeed `yaml:"domains"`
	Roles   []RoleSeed   `yaml:"roles"`
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (*Seed, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for i, d := range seed.Domains {
		if d.ID == "" || d.Name == "" {
			return nil, fmt.Errorf("domains[%d]: id and name are required", i)
		}
		if _, err := ids.ParseDomainID(d.ID); err != nil {
			return nil, fmt.Errorf("domains[%d]: %w", i, err)
		}
	}
	for i, r := range seed.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("roles[%d]: name is required", i)
		}
	}
	return &seed, nil
}

// Load reads the seed at path. An empty path returns the built-in seed with
// its domain ID replaced by defaultDomainID.
func Load(path string, defaultDomainID ids.DomainID) (*Seed, error) {
	if path == "" {
		seed, err := Parse(defaultSeed)
		if err != nil {
			return nil, err
		}
		seed.Domains[0].ID = defaultDomainID.String()
		return seed, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

type DomainEnsurer interface {
	EnsureDomain(ctx context.Context, in domainService.CreateInput) (*domainModels.Domain, bool, error)
}

type RoleEnsurer interface {
	EnsureRole(ctx context.Context, id ids.RoleID, name string) (*identityModels.Role, bool, error)
}

// Result counts what Apply created.
type Result struct {
	DomainsCreated int
	RolesCreated   int
}

// Apply creates every missing domain and role in seed. It stops at the
// first failure.
func Apply(ctx context.Context, seed *Seed, domains DomainEnsurer, roles RoleEnsurer, logger *slog.Logger) (Result, error) {
	if seed == nil {
		return Result{}, errors.New("seed is required")
	}
	var res Result
	for _, d := range seed.Domains {
		enabled := true
		if d.Enabled != nil {
			enabled = *d.Enabled
		}
		dom, created, err := domains.EnsureDomain(ctx, domainService.CreateInput{
			ID:          ids.DomainID(d.ID),
			Name:        d.Name,
			Description: d.Description,
			Enabled:     enabled,
		})
		if err != nil {
			return res, fmt.Errorf("seed domain %s: %w", d.ID, err)
		}
		if created {
			res.DomainsCreated++
			logger.InfoContext(ctx, "seeded domain", "domain_id", dom.ID, "name", dom.Name)
		}
	}
	for _, r := range seed.Roles {
		role, created, err := roles.EnsureRole(ctx, ids.RoleID(r.ID), r.Name)
		if err != nil {
			return res, fmt.Errorf("seed role %s: %w", r.Name, err)
		}
		if created {
			res.RolesCreated++
			logger.InfoContext(ctx, "seeded role", "role_id", role.ID, "name", role.Name)
		}
	}
	return res, nil
}
