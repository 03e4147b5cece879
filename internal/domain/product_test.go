package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ListingID
		wantErr bool
	}{
		{"integer", `7`, "7", false},
		{"string", `"SUPERMAXI-55"`, "SUPERMAXI-55", false},
		{"numeric string", `"42"`, "42", false},
		{"null", `null`, "", false},
		{"object", `{"id": 1}`, "", true},
		{"bool", `true`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ListingID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestProductKey_String(t *testing.T) {
	key := ProductKey{
		Brand:  "la favorita",
		Tokens: []string{"aceite", "girasol"},
		Family: FamilyVolume,
		Bucket: -3,
	}
	assert.Equal(t, "la favorita|aceite girasol|volume|-3", key.String())
	assert.Equal(t, "||mass|0", ProductKey{Family: FamilyMass}.String())
}

func TestQuery_String(t *testing.T) {
	assert.Equal(t, "listing:9", Query{ListingID: "9"}.String())
	assert.Equal(t, "text:arroz", Query{Text: "arroz"}.String())
}

func TestComparison_Best(t *testing.T) {
	_, ok := Comparison{}.Best()
	assert.False(t, ok)

	best := RankedMember{Rank: 1}
	best.ID = "3"
	c := Comparison{Found: true, Groups: []RankedGroup{{Best: best}}}

	got, ok := c.Best()
	require.True(t, ok)
	assert.Equal(t, ListingID("3"), got.ID)
}

func TestRankedMember_JSONFlattensListing(t *testing.T) {
	m := RankedMember{Rank: 2}
	m.ID = "5"
	m.Price = decimal.RequireFromString("1.25")
	m.Family = FamilyCount

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "5", raw["id"])
	assert.Equal(t, "1.25", raw["price"])
	assert.Equal(t, "count", raw["unit_family"])
	assert.Equal(t, float64(2), raw["rank"])
}
