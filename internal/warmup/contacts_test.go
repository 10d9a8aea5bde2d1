package warmup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectContacts(t *testing.T) {
	external := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		external = append(external, "55119100000"+string(rune('a'+i)))
	}
	internal := testContacts[:5]
	all := append(append([]string(nil), internal...), external...)

	tests := []struct {
		name     string
		stage    int
		count    int
		wantLen  int
		maxExtra int
	}{
		{"stage 1 internal only", 1, 10, 5, 0},
		{"stage 2 internal only", 2, 3, 3, 0},
		{"stage 3 first five externals", 3, 20, 10, 5},
		{"stage 4 truncated", 4, 7, 7, 10},
		{"stage 6 all externals available", 6, 50, 17, 50},
		{"zero count", 3, 0, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			require.NoError(t, r.Restore(InstanceSnapshot{Config: Config{
				InstanceName: "x", CurrentStage: tt.stage, Contacts: all,
				InternalContacts: internal, ExternalContacts: external,
			}}))

			got, err := r.SelectContacts("x", tt.count)
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)

			allowed := map[string]bool{}
			for _, c := range internal {
				allowed[c] = true
			}
			for i := 0; i < tt.maxExtra && i < len(external); i++ {
				allowed[external[i]] = true
			}
			seen := map[string]bool{}
			for _, c := range got {
				assert.True(t, allowed[c], "unexpected contact %s", c)
				assert.False(t, seen[c], "duplicate contact %s", c)
				seen[c] = true
			}
		})
	}
}

func TestSelectContactsShuffles(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.CreateConfig("x", testContacts)
	require.NoError(t, err)

	orders := map[string]bool{}
	for i := 0; i < 20; i++ {
		got, err := r.SelectContacts("x", 5)
		require.NoError(t, err)
		key := ""
		for _, c := range got {
			key += c + ","
		}
		orders[key] = true
	}
	assert.Greater(t, len(orders), 1)
}

func TestSelectContactsUnknownInstance(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.SelectContacts("nope", 3)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
