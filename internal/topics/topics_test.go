package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_Name(t *testing.T) {
	tree := NewTree("")
	tests := []struct {
		kind Kind
		id   string
		want string
	}{
		{Global, "", "warehouse/robots"},
		{Global, "ignored", "warehouse/robots"},
		{GlobalLocations, "", "warehouse/locations"},
		{Robot, "RB-0001", "warehouse/robots/RB-0001"},
		{Warehouse, "WH-1", "warehouse/WH-1/robots"},
		{WarehouseLocations, "WH-1", "warehouse/WH-1/locations"},
		{WarehouseDashboard, "WH-1", "warehouse/WH-1/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := tree.Name(tt.kind, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTree_CustomPrefixIsTrimmed(t *testing.T) {
	tree := NewTree("/site-a/")
	assert.Equal(t, "site-a", tree.Prefix())
	assert.Equal(t, "site-a/WH-2/locations", tree.MustName(WarehouseLocations, "WH-2"))
}

func TestTree_RejectsMalformedIdentifiers(t *testing.T) {
	tree := NewTree("warehouse")
	for _, id := range []string{"", "a/b", "wh+", "#"} {
		_, err := tree.Name(Warehouse, id)
		assert.Error(t, err, "id %q", id)
		_, err = tree.Name(Robot, id)
		assert.Error(t, err, "id %q", id)
	}
	_, err := tree.Name(Kind(99), "x")
	assert.Error(t, err)
}
