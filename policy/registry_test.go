package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPolicy(t *testing.T) {
	registry := NewRegistry(nil)

	tests := []struct {
		name     string
		input    SelectionInput
		expected interfaces.PolicyID
	}{
		{
			name:     "fresh private object gets default",
			input:    SelectionInput{Size: 2048, Privacy: interfaces.PrivacyPrivate},
			expected: interfaces.PolicyDefault,
		},
		{
			name:     "public object gets public policy",
			input:    SelectionInput{Size: 2048, Privacy: interfaces.PrivacyPublic},
			expected: interfaces.PolicyPublic,
		},
		{
			name: "frequently accessed object gets hot policy",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPrivate,
				AccessCount:  150,
				LastAccessed: time.Now(),
			},
			expected: interfaces.PolicyHot,
		},
		{
			name: "hot beats public for heavily accessed public content",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPublic,
				AccessCount:  500,
				LastAccessed: time.Now(),
			},
			expected: interfaces.PolicyHot,
		},
		{
			name: "stale rarely accessed object gets cold policy",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPrivate,
				AccessCount:  3,
				LastAccessed: time.Now().Add(-120 * 24 * time.Hour),
			},
			expected: interfaces.PolicyCold,
		},
		{
			name: "cold beats public for stale public content",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPublic,
				AccessCount:  2,
				LastAccessed: time.Now().Add(-100 * 24 * time.Hour),
			},
			expected: interfaces.PolicyCold,
		},
		{
			name: "rarely accessed but recently touched is not cold",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPrivate,
				AccessCount:  2,
				LastAccessed: time.Now().Add(-24 * time.Hour),
			},
			expected: interfaces.PolicyDefault,
		},
		{
			name:     "never accessed object is not cold",
			input:    SelectionInput{Privacy: interfaces.PrivacyPrivate, AccessCount: 0},
			expected: interfaces.PolicyDefault,
		},
		{
			name: "exactly at hot threshold is not hot",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPrivate,
				AccessCount:  HotAccessThreshold,
				LastAccessed: time.Now(),
			},
			expected: interfaces.PolicyDefault,
		},
		{
			name: "exactly at cold ceiling is not cold",
			input: SelectionInput{
				Privacy:      interfaces.PrivacyPrivate,
				AccessCount:  ColdAccessCeiling,
				LastAccessed: time.Now().Add(-120 * 24 * time.Hour),
			},
			expected: interfaces.PolicyDefault,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, registry.SelectPolicy(tc.input))
		})
	}
}

func TestSelectPolicyDeterministic(t *testing.T) {
	registry := NewRegistry(nil)
	input := SelectionInput{
		Privacy:      interfaces.PrivacyPublic,
		AccessCount:  150,
		LastAccessed: time.Now(),
	}

	first := registry.SelectPolicy(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, registry.SelectPolicy(input))
	}
}

func TestNewRegistryFillsDefaults(t *testing.T) {
	registry := NewRegistry([]interfaces.PinningPolicy{
		{ID: interfaces.PolicyHot, MinReplicas: 4, MaxReplicas: 10, Regions: []string{"us-east"}},
	})

	hot, ok := registry.PolicyByID(interfaces.PolicyHot)
	require.True(t, ok)
	assert.Equal(t, 4, hot.MinReplicas)
	assert.Equal(t, 10, hot.MaxReplicas)

	// Policies not overridden keep their built-in shape.
	def, ok := registry.PolicyByID(interfaces.PolicyDefault)
	require.True(t, ok)
	assert.Equal(t, 2, def.MinReplicas)
	assert.Equal(t, 3, def.MaxReplicas)

	assert.Equal(t, 10, registry.HotCeiling())
	assert.Equal(t, 1, registry.ColdFloor())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	seed := `policies:
  - id: hot
    min_replicas: 6
    max_replicas: 9
    regions: ["us-east", "eu-west"]
  - id: default
    min_replicas: 3
    max_replicas: 4
    regions: ["us-east", "us-west"]
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	registry, err := LoadFile(path)
	require.NoError(t, err)

	hot, ok := registry.PolicyByID(interfaces.PolicyHot)
	require.True(t, ok)
	assert.Equal(t, 6, hot.MinReplicas)
	assert.Equal(t, []string{"us-east", "eu-west"}, hot.Regions)

	def, _ := registry.PolicyByID(interfaces.PolicyDefault)
	assert.Equal(t, 3, def.MinReplicas)
}

func TestLoadFileInvalidBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	seed := `policies:
  - id: hot
    min_replicas: 5
    max_replicas: 2
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
