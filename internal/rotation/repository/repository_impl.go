package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/leadbridge/internal/rotation/domain"
	"github.com/smallbiznis/leadbridge/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByFormKey(ctx context.Context, conn *gorm.DB, formKey string, forUpdate bool) (*domain.CampaignRotationState, error) {
	q := conn.WithContext(ctx).Where("form_key = ?", formKey)
	if forUpdate && db.SupportsRowLocks(conn) {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var state domain.CampaignRotationState
	err := q.Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, conn *gorm.DB, state *domain.CampaignRotationState) error {
	err := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "form_key"}},
		DoNothing: true,
	}).Create(state).Error
	// A concurrent insert for the same form still leaves a row to lock.
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repo) Save(ctx context.Context, conn *gorm.DB, state *domain.CampaignRotationState) error {
	return conn.WithContext(ctx).
		Model(&domain.CampaignRotationState{}).
		Where("id = ?", state.ID).
		Updates(map[string]any{
			"campaign_ids":       state.CampaignIDs,
			"last_used_index":    state.LastUsedIndex,
			"last_used_id":       state.LastUsedID,
			"total_leads_routed": state.TotalLeadsRouted,
			"updated_at":         state.UpdatedAt,
		}).Error
}

func (r *repo) DeleteByFormKey(ctx context.Context, conn *gorm.DB, formKey string) (bool, error) {
	res := conn.WithContext(ctx).Where("form_key = ?", formKey).Delete(&domain.CampaignRotationState{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
