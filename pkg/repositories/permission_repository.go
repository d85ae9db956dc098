package repositories

import (
	"context"
	"fmt"
)

// PermissionRepository answers role permission lookups.
type PermissionRepository interface {
	// HasPermission reports whether role is granted permission.
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

type permissionRepository struct{}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository() PermissionRepository {
	return &permissionRepository{}
}

var _ PermissionRepository = (*permissionRepository)(nil)

func (r *permissionRepository) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	if role == "" {
		return false, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	var granted bool
	err = q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_permissions WHERE role = $1 AND permission = $2
		)`, role, permission).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return granted, nil
}
