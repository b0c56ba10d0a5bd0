package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const formsYAML = `
forms:
  - page_id: "42"
    widget_id: "a1b2c3"
    campaigns: ["101", " 102 ", ""]
    capture_source: landing
    location_mode: automatic
    mapping:
      name: field_name
      phone_number: field_phone
  - page_id: "43"
    widget_id: "d4e5f6"
    campaigns: ["200"]
`

func TestNewFormConfigHolderLoadsForms(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forms.yml"), []byte(formsYAML), 0o600))

	holder, err := NewFormConfigHolder(Config{FormsConfigPath: dir}, zap.NewNop())
	require.NoError(t, err)

	form, ok := holder.Get().Lookup("42_a1b2c3")
	require.True(t, ok)
	assert.Equal(t, []string{"101", "102"}, form.Campaigns)
	assert.True(t, form.AutomaticLocation())
	assert.Equal(t, "field_name", form.Mapping["name"])

	other, ok := holder.Get().Lookup(FormKey("43", "d4e5f6"))
	require.True(t, ok)
	assert.Equal(t, LocationModeManual, other.LocationMode)
	assert.False(t, other.AutomaticLocation())
}

func TestNewFormConfigHolderMissingFileIsEmpty(t *testing.T) {
	holder, err := NewFormConfigHolder(Config{FormsConfigPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	_, ok := holder.Get().Lookup("1_2")
	assert.False(t, ok)
}

func TestNewStaticFormConfigHolderRejectsDuplicates(t *testing.T) {
	_, err := NewStaticFormConfigHolder(
		FormConfig{PageID: "1", WidgetID: "w"},
		FormConfig{PageID: "1", WidgetID: "w"},
	)
	assert.Error(t, err)
}

func TestNewStaticFormConfigHolderRejectsUnknownLocationMode(t *testing.T) {
	_, err := NewStaticFormConfigHolder(FormConfig{PageID: "1", WidgetID: "w", LocationMode: "gps"})
	assert.Error(t, err)
}

func TestFormKeyKeepsUnderscoredIDsApart(t *testing.T) {
	assert.Equal(t, "42_abc", FormKey(" 42 ", "abc"))
	assert.NotEqual(t, FormKey("1_2", "3"), FormKey("1", "2_3"))

	holder, err := NewStaticFormConfigHolder(
		FormConfig{PageID: "1_2", WidgetID: "3"},
		FormConfig{PageID: "1", WidgetID: "2_3"},
	)
	require.NoError(t, err)
	_, ok := holder.Get().Lookup(FormKey("1", "2_3"))
	assert.True(t, ok)
}
