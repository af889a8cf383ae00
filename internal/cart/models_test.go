package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildView(t *testing.T) {
	t.Run("totals from live prices", func(t *testing.T) {
		v := BuildView([]Line{
			{ProductID: "p1", Name: "Loa JBL", Quantity: 2, UnitPriceCents: 3_500_000},
			{ProductID: "p2", Name: "Micro Shure", Quantity: 1, UnitPriceCents: 1_200_000},
		})
		assert.Equal(t, 3, v.ItemCount)
		assert.Equal(t, int64(8_200_000), v.TotalCents)
		require.Len(t, v.Items, 2)
		assert.Equal(t, int64(7_000_000), v.Items[0].LineCents)
	})

	t.Run("unavailable lines are listed but zeroed", func(t *testing.T) {
		v := BuildView([]Line{
			{ProductID: "p1", Quantity: 1, UnitPriceCents: 500_000},
			{ProductID: "gone", Quantity: 2, UnitPriceCents: 999, Unavailable: true},
		})
		assert.Equal(t, int64(500_000), v.TotalCents)
		assert.Equal(t, 3, v.ItemCount)
		require.Len(t, v.Items, 2)
		assert.True(t, v.Items[1].Unavailable)
		assert.Equal(t, int64(0), v.Items[1].UnitPriceCents)
		assert.Equal(t, int64(0), v.Items[1].LineCents)
	})

	t.Run("empty cart", func(t *testing.T) {
		v := BuildView(nil)
		assert.NotNil(t, v.Items)
		assert.Equal(t, 0, v.ItemCount)
		assert.Equal(t, int64(0), v.TotalCents)
	})
}
