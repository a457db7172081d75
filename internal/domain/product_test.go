package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_Ratios(t *testing.T) {
	p := Product{Price: 2, Nutrition: Nutrition{Calories: 300, Protein: 20}}
	assert.InDelta(t, 10.0, p.ProteinPerPrice(), 1e-9)
	assert.InDelta(t, 150.0, p.CaloriesPerPrice(), 1e-9)

	free := Product{Price: 0, Nutrition: Nutrition{Calories: 300, Protein: 20}}
	assert.Zero(t, free.ProteinPerPrice())
	assert.Zero(t, free.CaloriesPerPrice())
}

func TestProduct_MeetsRestrictions(t *testing.T) {
	tests := []struct {
		name         string
		category     string
		restrictions []string
		want         bool
	}{
		{"no restrictions", CategoryBakery, nil, true},
		{"bread is not gluten free", CategoryBakery, []string{RestrictionGlutenFree}, false},
		{"dairy has lactose", CategoryDairy, []string{RestrictionLactoseFree}, false},
		{"meat is not vegan", CategoryMeat, []string{RestrictionVegan}, false},
		{"fish is not vegan", CategoryFish, []string{RestrictionVegan}, false},
		{"dairy is not vegan", CategoryDairy, []string{RestrictionVegan}, false},
		{"fruit is vegan", CategoryFruits, []string{RestrictionVegan, RestrictionGlutenFree}, true},
		{"unknown restriction ignored", CategoryMeat, []string{"Sin azúcar"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Category: tt.category}
			assert.Equal(t, tt.want, p.MeetsRestrictions(tt.restrictions))
		})
	}
}

func TestExternalID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ExternalID
		wantErr bool
	}{
		{"string", `"4241"`, "4241", false},
		{"fractional string", `"482910.0"`, "482910.0", false},
		{"number", `482910`, "482910", false},
		{"fractional number", `482910.0`, "482910.0", false},
		{"null", `null`, "", false},
		{"object", `{"a":1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ExternalID
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

func TestBridgeEnvelope_Records(t *testing.T) {
	t.Run("splits array into elements", func(t *testing.T) {
		var env BridgeEnvelope
		require.NoError(t, json.Unmarshal([]byte(`{"success":true,"data":[{"id":"1"},{"id":2},"junk"]}`), &env))

		records, err := env.Records()
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("missing data is malformed", func(t *testing.T) {
		env := BridgeEnvelope{Success: true}
		_, err := env.Records()
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("object data is malformed for listings", func(t *testing.T) {
		env := BridgeEnvelope{Success: true, Data: json.RawMessage(`{"id":"1"}`)}
		_, err := env.Records()
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}
