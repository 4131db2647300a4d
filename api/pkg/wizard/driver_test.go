package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/selector"
)

func TestIntegrationsURL(t *testing.T) {
	d := NewDriver(selector.DefaultTable(), config.Target{
		BaseURL:                  "https://app.onetoo.com",
		IntegrationsPathTemplate: "/v2/location/%s/settings/private-integrations/",
	}, Options{})

	assert.Equal(t,
		"https://app.onetoo.com/v2/location/loc-123/settings/private-integrations/",
		d.IntegrationsURL("loc-123"))
}

func TestTokenShaped(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"valid token", "pit-0a1b2c3d4e5f6a7b8c9d", "pit-0a1b2c3d4e5f6a7b8c9d", true},
		{"surrounding whitespace trimmed", "  pit-0a1b2c3d4e5f6a7b8c9d\n", "pit-0a1b2c3d4e5f6a7b8c9d", true},
		{"wrong prefix", "tok-0a1b2c3d4e5f6a7b8c9d", "", false},
		{"too short", "pit-abc", "", false},
		{"interior whitespace", "pit-0a1b2c3d 4e5f6a7b8c9d", "", false},
		{"empty", "", "", false},
		{"prose mentioning the prefix", "Copy your pit- token below", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tokenShaped(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstTokenShapedScansInDocumentOrder(t *testing.T) {
	tok, ok := firstTokenShaped([]string{
		"Your integration was created",
		"Copy your pit- token below",
		"pit-0a1b2c3d4e5f6a7b8c9d",
		"pit-ffffffffffffffffffff",
	})
	require.True(t, ok)
	assert.Equal(t, "pit-0a1b2c3d4e5f6a7b8c9d", tok, "first shaped candidate wins")
}

func TestFirstTokenShapedNoCandidate(t *testing.T) {
	_, ok := firstTokenShaped([]string{"Done!", "pit-abc", ""})
	assert.False(t, ok)

	_, ok = firstTokenShaped(nil)
	assert.False(t, ok)
}

func TestDefaultScopes(t *testing.T) {
	assert.Len(t, DefaultScopes, 15)
	assert.Contains(t, DefaultScopes, "View Contacts")
	assert.Contains(t, DefaultScopes, "Edit Conversation Messages")
}
