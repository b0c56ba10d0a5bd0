package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NameAPIKey   = "iare_crm_api_key"
	NameSettings = "iare_crm_settings"
)

const (
	DefaultCacheDuration = 3600
	MinCacheDuration     = 300
	MaxCacheDuration     = 86400
)

// Setting is one named JSON value.
type Setting struct {
	Name      string         `gorm:"primaryKey;size:191" json:"name"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Settings is the admin-managed integration settings blob.
type Settings struct {
	DefaultCampaignID string `json:"default_campaign_id"`
	EnableLogging     bool   `json:"enable_logging"`
	CacheDuration     int    `json:"cache_duration"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultCampaignID: "",
		EnableLogging:     true,
		CacheDuration:     DefaultCacheDuration,
	}
}

// UpdateSettingsRequest carries a partial update; nil fields keep defaults.
type UpdateSettingsRequest struct {
	DefaultCampaignID *string `json:"default_campaign_id"`
	EnableLogging     *bool   `json:"enable_logging"`
	CacheDuration     *int    `json:"cache_duration"`
}
