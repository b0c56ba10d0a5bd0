package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNoCampaigns   = errors.New("no_campaigns")
	ErrInvalidFormID = errors.New("invalid_form_id")
	ErrRotationBusy  = errors.New("rotation_busy")
	ErrNotFound      = errors.New("rotation_not_found")
)

type Repository interface {
	FindByFormKey(ctx context.Context, db *gorm.DB, formKey string, forUpdate bool) (*CampaignRotationState, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, state *CampaignRotationState) error
	Save(ctx context.Context, db *gorm.DB, state *CampaignRotationState) error
	DeleteByFormKey(ctx context.Context, db *gorm.DB, formKey string) (bool, error)
}

type Service interface {
	SelectNext(ctx context.Context, campaignIDs []string, formID string) (string, *CampaignRotationState, error)
	Get(ctx context.Context, formID string) (*CampaignRotationState, error)
	Reset(ctx context.Context, formID string) error
}
