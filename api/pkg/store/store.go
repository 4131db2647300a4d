package store

import (
	"context"
	"errors"

	"github.com/squidgyai/hlprovision/api/pkg/types"
)

var ErrNotFound = errors.New("not found")

type ListTenantCredentialsQuery struct {
	// ExpiringBefore filters to records whose tracked expiry falls before
	// the given instant; zero means no filter.
	ExpiringBefore int64 `json:"expiring_before"`
}

type Store interface {
	// UpsertTenantCredentials writes the given fields for a tenant,
	// creating the record on first sight. Zero-valued update fields are
	// left untouched so a partial capture never clobbers previously
	// known-good values.
	UpsertTenantCredentials(ctx context.Context, tenantID string, update types.CredentialUpdate) (*types.TenantCredentialRecord, error)
	GetTenantCredentials(ctx context.Context, tenantID string) (*types.TenantCredentialRecord, error)
	ListTenantCredentials(ctx context.Context, q *ListTenantCredentialsQuery) ([]*types.TenantCredentialRecord, error)
	// DeleteTenantCredentials is an administrative action, never part of a
	// provisioning run.
	DeleteTenantCredentials(ctx context.Context, tenantID string) error
}
