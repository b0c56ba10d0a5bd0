package campaign

import (
	"context"
	"time"

	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/crm"
	settingsdomain "github.com/smallbiznis/leadbridge/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	CacheKey = "iare_crm_campaigns"

	FilledTTL = 5 * time.Minute
	EmptyTTL  = time.Minute
)

// Lister fetches campaigns from the CRM.
type Lister interface {
	GetCampaigns(ctx context.Context, apiKey string, params crm.CampaignParams) (crm.Result, *crm.CampaignPage)
}

// APIKeySource returns the stored CRM API key.
type APIKeySource interface {
	GetAPIKey(ctx context.Context) (string, error)
}

// Option is one entry of a campaign select list.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Params struct {
	fx.In

	Lister   Lister
	Settings settingsdomain.Service
	Store    cache.Store
	Log      *zap.Logger
}

type Catalog struct {
	lister Lister
	keys   APIKeySource
	store  cache.Store
	log    *zap.Logger
}

func New(p Params) *Catalog {
	return &Catalog{
		lister: p.Lister,
		keys:   p.Settings,
		store:  p.Store,
		log:    p.Log.Named("campaign.catalog"),
	}
}

// List returns active campaigns. Non-empty listings are cached for
// FilledTTL, empty or failed ones for EmptyTTL. Without an API key the
// result is empty and nothing is cached.
func (c *Catalog) List(ctx context.Context) ([]crm.Campaign, error) {
	var campaigns []crm.Campaign
	found, err := c.store.Get(ctx, CacheKey, &campaigns)
	if err != nil {
		c.log.Warn("read cached campaigns failed", zap.Error(err))
	}
	if found {
		return nonNil(campaigns), nil
	}

	apiKey, err := c.keys.GetAPIKey(ctx)
	if err != nil {
		return []crm.Campaign{}, err
	}
	if apiKey == "" {
		return []crm.Campaign{}, nil
	}

	res, page := c.lister.GetCampaigns(ctx, apiKey, crm.CampaignParams{})
	campaigns = []crm.Campaign{}
	ttl := EmptyTTL
	if res.Success && page != nil && len(page.Campaigns) > 0 {
		campaigns = page.Campaigns
		ttl = FilledTTL
	} else if !res.Success {
		c.log.Warn("campaign listing failed",
			zap.String("code", res.Code),
			zap.String("message", res.Message),
		)
	}

	if err := c.store.Set(ctx, CacheKey, campaigns, ttl); err != nil {
		c.log.Warn("cache campaigns failed", zap.Error(err))
	}
	return campaigns, nil
}

// Options builds select options, or a single placeholder when empty.
func (c *Catalog) Options(ctx context.Context) ([]Option, error) {
	campaigns, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return []Option{{ID: "", Name: "No campaigns available (check API key)"}}, nil
	}
	options := make([]Option, 0, len(campaigns)+1)
	options = append(options, Option{ID: "", Name: "Select Campaign"})
	for _, campaign := range campaigns {
		options = append(options, Option{ID: campaign.ID.String(), Name: campaign.Name})
	}
	return options, nil
}

// Invalidate drops the cached listing.
func (c *Catalog) Invalidate(ctx context.Context) {
	if err := c.store.Delete(ctx, CacheKey); err != nil {
		c.log.Warn("invalidate campaigns failed", zap.Error(err))
	}
}

func (c *Catalog) APIKeyChanged(ctx context.Context, _, _ string) {
	c.Invalidate(ctx)
}

func nonNil(in []crm.Campaign) []crm.Campaign {
	if in == nil {
		return []crm.Campaign{}
	}
	return in
}
