package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/auth"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/repositories"
)

// Scope is the visibility and authority level a principal holds over pending envelopes.
type Scope string

const (
	// ScopeAll sees and mutates every envelope and may approve.
	ScopeAll Scope = "all"
	// ScopeOwn sees and mutates only envelopes the principal created.
	ScopeOwn Scope = "own"
)

// RoleEditor is the only role granted ScopeOwn without a permission grant.
const RoleEditor = "EDITOR"

// DefaultModerationPermission is the permission code that grants ScopeAll.
const DefaultModerationPermission = "pending:review"

// Access is the resolved authority of the current principal.
type Access struct {
	Scope      Scope
	ActorLabel string
	ActorID    *int64
}

// CanApprove reports whether the principal may promote envelopes.
func (a *Access) CanApprove() bool {
	return a.Scope == ScopeAll
}

// Owns reports whether the envelope is visible to and mutable by the principal.
// With ScopeOwn the numeric creator id is checked first, then the legacy
// "createdBy" label recorded in the envelope note.
func (a *Access) Owns(pw *models.PendingWord) bool {
	if a.Scope == ScopeAll {
		return true
	}
	if a.ActorID != nil && pw.CreatedByUserID != nil && *pw.CreatedByUserID == *a.ActorID {
		return true
	}
	label := a.matchLabel()
	return label != "" && pw.Note.CreatedBy == label
}

// Filter returns the repository filter that limits queries to what the principal may see.
func (a *Access) Filter() repositories.PendingWordFilter {
	if a.Scope == ScopeAll {
		return repositories.PendingWordFilter{}
	}
	return repositories.PendingWordFilter{
		Owned:       true,
		OwnerUserID: a.ActorID,
		OwnerLabel:  a.matchLabel(),
	}
}

// matchLabel is the label used for ownership matching. The "unknown"
// placeholder never proves ownership.
func (a *Access) matchLabel() string {
	if a.ActorLabel == auth.UnknownLabel {
		return ""
	}
	return a.ActorLabel
}

// AccessScopeResolver decides how much of the moderation queue a principal controls.
type AccessScopeResolver interface {
	// Resolve returns the caller's access. It fails with apperrors.ErrUnauthorized
	// when ctx carries no principal and apperrors.ErrForbidden when the
	// principal's role grants neither scope.
	Resolve(ctx context.Context) (*Access, error)
}

type accessScopeResolver struct {
	permissionRepo repositories.PermissionRepository
	permission     string
	logger         *zap.Logger
}

// NewAccessScopeResolver creates a resolver that grants ScopeAll to roles
// holding permission.
func NewAccessScopeResolver(permissionRepo repositories.PermissionRepository, permission string, logger *zap.Logger) AccessScopeResolver {
	if permission == "" {
		permission = DefaultModerationPermission
	}
	return &accessScopeResolver{
		permissionRepo: permissionRepo,
		permission:     permission,
		logger:         logger.Named("access-scope"),
	}
}

var _ AccessScopeResolver = (*accessScopeResolver)(nil)

func (r *accessScopeResolver) Resolve(ctx context.Context) (*Access, error) {
	principal, ok := auth.GetPrincipal(ctx)
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}

	access := &Access{
		ActorLabel: principal.Label(),
		ActorID:    principal.UserID,
	}

	granted, err := r.permissionRepo.HasPermission(ctx, principal.Role, r.permission)
	if err != nil {
		return nil, fmt.Errorf("failed to check moderation permission: %w", err)
	}
	if granted {
		access.Scope = ScopeAll
		return access, nil
	}

	if principal.Role == RoleEditor {
		access.Scope = ScopeOwn
		return access, nil
	}

	r.logger.Debug("Principal has no moderation scope",
		zap.String("role", principal.Role),
		zap.String("actor", access.ActorLabel))
	return nil, fmt.Errorf("role %q: %w", principal.Role, apperrors.ErrForbidden)
}
