package domain

import (
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const formKeyPrefix = "rotation_"

// CampaignRotationState is the round-robin cursor of one form.
type CampaignRotationState struct {
	ID               snowflake.ID                `gorm:"primaryKey" json:"id"`
	FormKey          string                      `gorm:"not null;uniqueIndex:ux_campaign_rotations_form_key;size:191" json:"form_key"`
	CampaignIDs      datatypes.JSONSlice[string] `gorm:"not null" json:"campaign_ids"`
	LastUsedIndex    int                         `gorm:"not null;default:-1" json:"last_used_index"`
	LastUsedID       string                      `gorm:"not null;default:''" json:"last_used_id"`
	TotalLeadsRouted int64                       `gorm:"not null;default:0" json:"total_leads_routed"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (CampaignRotationState) TableName() string {
	return "campaign_rotations"
}

// Matches reports whether the stored ordered list equals ids.
func (s CampaignRotationState) Matches(ids []string) bool {
	return slices.Equal([]string(s.CampaignIDs), ids)
}

// Reset points the cursor before the first element of ids.
func (s *CampaignRotationState) Reset(ids []string) {
	s.CampaignIDs = datatypes.NewJSONSlice(slices.Clone(ids))
	s.LastUsedIndex = -1
	s.LastUsedID = ""
	s.TotalLeadsRouted = 0
}

// Advance moves the cursor to the next campaign and returns it.
func (s *CampaignRotationState) Advance(now time.Time) string {
	n := len(s.CampaignIDs)
	next := (s.LastUsedIndex + 1) % n
	if next < 0 {
		next = 0
	}
	s.LastUsedIndex = next
	s.LastUsedID = s.CampaignIDs[next]
	s.TotalLeadsRouted++
	s.UpdatedAt = now
	return s.LastUsedID
}

// FormKey is the value stored for a form identifier.
func FormKey(formID string) string {
	return formKeyPrefix + formID
}
