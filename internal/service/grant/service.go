package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/engine"
	"github.com/splax/gatehouse/internal/repository"
)

// Service manages explicit permission grants. Every write passes the
// engine's management guard first.
type Service struct {
	grants repository.GrantStore
	engine *engine.Engine
	logger *slog.Logger
}

// New constructs a Service.
func New(grants repository.GrantStore, eng *engine.Engine, logger *slog.Logger) Service {
	return Service{grants: grants, engine: eng, logger: logger}
}

var (
	// ErrForbidden wraps a guard denial; the reason is in the message.
	ErrForbidden       = errors.New("grant management forbidden")
	errMissingResource = errors.New("resource type and id are required")
	errInvalidScope    = errors.New("grant needs exactly one of user, team or role scope (a role may carry its team)")
	errNoCapabilities  = errors.New("grant carries no capabilities")
)

// Input describes a grant to create or the new state of an existing one.
type Input struct {
	ResourceType string
	ResourceID   string
	UserID       string
	TeamID       string
	RoleID       string
	CanView      bool
	CanExecute   bool
	CanCopy      bool
	CanEdit      bool
	CanDelete    bool
	CanShare     bool
	ExpiresAt    *time.Time
}

func (in Input) validate() error {
	if in.ResourceType == "" || in.ResourceID == "" {
		return errMissingResource
	}
	switch {
	case in.UserID != "" && in.TeamID == "" && in.RoleID == "":
	case in.UserID == "" && in.TeamID != "" && in.RoleID == "":
	case in.UserID == "" && in.RoleID != "":
		// role scope; team_id optional for team-agnostic roles
	default:
		return errInvalidScope
	}
	if !in.CanView && !in.CanExecute && !in.CanCopy && !in.CanEdit && !in.CanDelete && !in.CanShare {
		return errNoCapabilities
	}
	return nil
}

// Create registers a grant on behalf of the actor.
func (s Service) Create(ctx context.Context, actor string, in Input) (*domain.PermissionGrant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ok, reason := s.engine.CanManageGrant(ctx, actor, in.ResourceType, in.ResourceID, engine.GrantCreate)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, reason)
	}
	grant := &domain.PermissionGrant{
		ID:           uuid.NewString(),
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		UserID:       in.UserID,
		TeamID:       in.TeamID,
		RoleID:       in.RoleID,
		CanView:      in.CanView,
		CanExecute:   in.CanExecute,
		CanCopy:      in.CanCopy,
		CanEdit:      in.CanEdit,
		CanDelete:    in.CanDelete,
		CanShare:     in.CanShare,
		ExpiresAt:    in.ExpiresAt,
		CreatedBy:    actor,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.grants.CreateGrant(ctx, grant); err != nil {
		return nil, err
	}
	s.logger.Info("permission grant created",
		"grant_id", grant.ID, "resource_type", grant.ResourceType,
		"resource_id", grant.ResourceID, "created_by", actor)
	return grant, nil
}

// Update rewrites a grant's capability flags and expiry.
func (s Service) Update(ctx context.Context, actor, grantID string, in Input) (*domain.PermissionGrant, error) {
	existing, err := s.grants.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	ok, reason := s.engine.CanManageGrant(ctx, actor, existing.ResourceType, existing.ResourceID, engine.GrantUpdate)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, reason)
	}
	existing.CanView = in.CanView
	existing.CanExecute = in.CanExecute
	existing.CanCopy = in.CanCopy
	existing.CanEdit = in.CanEdit
	existing.CanDelete = in.CanDelete
	existing.CanShare = in.CanShare
	existing.ExpiresAt = in.ExpiresAt
	if err := s.grants.UpdateGrant(ctx, existing); err != nil {
		return nil, err
	}
	s.logger.Info("permission grant updated", "grant_id", grantID, "updated_by", actor)
	return existing, nil
}

// Delete removes a grant.
func (s Service) Delete(ctx context.Context, actor, grantID string) error {
	existing, err := s.grants.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	ok, reason := s.engine.CanManageGrant(ctx, actor, existing.ResourceType, existing.ResourceID, engine.GrantDelete)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForbidden, reason)
	}
	if err := s.grants.DeleteGrant(ctx, grantID); err != nil {
		return err
	}
	s.logger.Info("permission grant deleted", "grant_id", grantID, "deleted_by", actor)
	return nil
}
