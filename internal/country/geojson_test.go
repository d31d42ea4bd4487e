package country

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureCollection(t *testing.T) {
	fc := europeTable().FeatureCollection([]string{"DE"})
	require.Len(t, fc.Features, 2)

	assert.Equal(t, "FR", fc.Features[0].ID)
	assert.Equal(t, false, fc.Features[0].Properties["visited"])
	assert.Equal(t, "France", fc.Features[0].Properties["name"])
	assert.Equal(t, true, fc.Features[1].Properties["visited"])
}

func TestMarshalGeoJSON(t *testing.T) {
	data, err := europeTable().MarshalGeoJSON(nil)
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 2)
	assert.Equal(t, "Feature", doc.Features[0].Type)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)
}
