package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	LocationModeManual    = "manual"
	LocationModeAutomatic = "automatic"
)

// FormConfig is the lead integration attached to one form widget.
type FormConfig struct {
	PageID             string            `mapstructure:"page_id"`
	WidgetID           string            `mapstructure:"widget_id"`
	Campaigns          []string          `mapstructure:"campaigns"`
	CaptureSource      string            `mapstructure:"capture_source"`
	DefaultCountryCode string            `mapstructure:"default_country_code"`
	LocationMode       string            `mapstructure:"location_mode"`
	Mapping            map[string]string `mapstructure:"mapping"`
}

// Key returns the stable form identifier derived from page and widget ids.
func (f FormConfig) Key() string {
	return FormKey(f.PageID, f.WidgetID)
}

// AutomaticLocation reports whether city/state/country come from geolocation.
func (f FormConfig) AutomaticLocation() bool {
	return strings.EqualFold(strings.TrimSpace(f.LocationMode), LocationModeAutomatic)
}

var formKeyEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// FormKey joins a page/content id and a widget id with "_". Underscores
// inside either id are escaped so distinct pairs never share a key.
func FormKey(pageID, widgetID string) string {
	return formKeyEscaper.Replace(strings.TrimSpace(pageID)) + "_" +
		formKeyEscaper.Replace(strings.TrimSpace(widgetID))
}

// FormsConfig is the snapshot loaded from forms.yml.
type FormsConfig struct {
	Forms []FormConfig `mapstructure:"forms"`
	index map[string]FormConfig
}

// Lookup finds a form by its key.
func (c FormsConfig) Lookup(key string) (FormConfig, bool) {
	if c.index == nil {
		for _, f := range c.Forms {
			if f.Key() == key {
				return f, true
			}
		}
		return FormConfig{}, false
	}
	f, ok := c.index[key]
	return f, ok
}

type FormConfigHolder struct {
	current atomic.Value // holds FormsConfig
}

// NewFormConfigHolder reads forms.yml and keeps it reloaded on change.
// A missing file yields an empty form set.
func NewFormConfigHolder(cfg Config, log *zap.Logger) (*FormConfigHolder, error) {
	log = log.Named("forms.config")
	v := viper.New()

	v.SetConfigName("forms")
	v.SetConfigType("yml")
	v.AddConfigPath(cfg.FormsConfigPath)
	v.AddConfigPath("/etc/leadbridge")
	v.AddConfigPath(".")

	holder := &FormConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(FormsConfig{index: map[string]FormConfig{}})
		return holder, nil
	}

	loaded, err := decodeForms(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(loaded)
	log.Info("forms config loaded", zap.String("file", v.ConfigFileUsed()), zap.Int("forms", len(loaded.Forms)))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeForms(v)
		if err != nil {
			log.Warn("invalid forms config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("forms config reloaded", zap.String("file", e.Name), zap.Int("forms", len(updated.Forms)))
	})

	return holder, nil
}

// NewStaticFormConfigHolder serves a fixed form set.
func NewStaticFormConfigHolder(forms ...FormConfig) (*FormConfigHolder, error) {
	cfg := FormsConfig{Forms: forms}
	if err := validateForms(&cfg); err != nil {
		return nil, err
	}
	holder := &FormConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *FormConfigHolder) Get() FormsConfig {
	return h.current.Load().(FormsConfig)
}

func decodeForms(v *viper.Viper) (FormsConfig, error) {
	var cfg FormsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return FormsConfig{}, err
	}
	if err := validateForms(&cfg); err != nil {
		return FormsConfig{}, err
	}
	return cfg, nil
}

func validateForms(cfg *FormsConfig) error {
	cfg.index = make(map[string]FormConfig, len(cfg.Forms))
	for i := range cfg.Forms {
		form := &cfg.Forms[i]
		if strings.TrimSpace(form.PageID) == "" || strings.TrimSpace(form.WidgetID) == "" {
			return fmt.Errorf("forms[%d]: page_id and widget_id are required", i)
		}
		if form.LocationMode == "" {
			form.LocationMode = LocationModeManual
		}
		switch strings.ToLower(form.LocationMode) {
		case LocationModeManual, LocationModeAutomatic:
		default:
			return fmt.Errorf("forms[%d]: unknown location_mode %q", i, form.LocationMode)
		}
		campaigns := make([]string, 0, len(form.Campaigns))
		for _, id := range form.Campaigns {
			if id = strings.TrimSpace(id); id != "" {
				campaigns = append(campaigns, id)
			}
		}
		form.Campaigns = campaigns

		key := form.Key()
		if _, dup := cfg.index[key]; dup {
			return errors.New("duplicate form " + key)
		}
		cfg.index[key] = *form
	}
	return nil
}
