package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/squidgyai/hlprovision/api/pkg/types"
)

// UpsertTenantCredentials creates or updates the credential record for a
// tenant. Only the fields present in the update are written; disjoint
// updates commute.
func (s *PostgresStore) UpsertTenantCredentials(ctx context.Context, tenantID string, update types.CredentialUpdate) (*types.TenantCredentialRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}

	var record types.TenantCredentialRecord

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tenant_id = ?", tenantID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = types.TenantCredentialRecord{
				TenantID:  tenantID,
				CreatedAt: time.Now(),
			}
		} else if err != nil {
			return err
		}

		if update.Bearer != "" {
			record.BearerToken = update.Bearer
		}
		if update.Session != "" {
			record.SessionToken = update.Session
		}
		if update.Refresh != "" {
			record.RefreshToken = update.Refresh
		}
		if update.Integration != "" {
			record.IntegrationToken = update.Integration
		}
		if update.ExpiresAt != nil {
			record.ExpiresAt = update.ExpiresAt
		}
		record.UpdatedAt = time.Now()

		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert credentials for tenant %s: %w", tenantID, err)
	}

	return &record, nil
}

func (s *PostgresStore) GetTenantCredentials(ctx context.Context, tenantID string) (*types.TenantCredentialRecord, error) {
	var record types.TenantCredentialRecord

	err := s.gdb.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credentials for tenant %s: %w", tenantID, err)
	}

	return &record, nil
}

func (s *PostgresStore) ListTenantCredentials(ctx context.Context, q *ListTenantCredentialsQuery) ([]*types.TenantCredentialRecord, error) {
	var records []*types.TenantCredentialRecord

	db := s.gdb.WithContext(ctx)
	if q != nil && q.ExpiringBefore > 0 {
		db = db.Where("expires_at IS NOT NULL AND expires_at < ?", time.Unix(q.ExpiringBefore, 0))
	}

	if err := db.Order("tenant_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenant credentials: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) DeleteTenantCredentials(ctx context.Context, tenantID string) error {
	err := s.gdb.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&types.TenantCredentialRecord{}).Error

	if err != nil {
		return fmt.Errorf("failed to delete credentials for tenant %s: %w", tenantID, err)
	}
	return nil
}
