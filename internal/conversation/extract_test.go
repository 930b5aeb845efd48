package conversation

import (
	"testing"
	"time"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSKUs(t *testing.T) {
	metadata := map[string]any{
		"cards": []any{
			map[string]any{"sku": "A1"},
			map[string]any{"SKU": "B2"},
			map[string]any{"product_id": float64(42)},
			map[string]any{"name": "no sku"},
			"not a card",
		},
	}
	assert.Equal(t, []string{"A1", "B2", "42"}, ExtractSKUs(metadata))

	assert.Nil(t, ExtractSKUs(nil))
	assert.Nil(t, ExtractSKUs(map[string]any{"cards": "bad"}))
}

func TestMergeRecentSKUs(t *testing.T) {
	now := time.Now()
	recent := []domain.RecentItem{{SKU: "A1"}}

	recent = MergeRecentSKUs(recent, []string{"A1", "B2"}, 10, now)
	require.Len(t, recent, 2)
	assert.Equal(t, "B2", recent[1].SKU)

	var skus []string
	for i := 0; i < 12; i++ {
		skus = append(skus, string(rune('a'+i)))
	}
	recent = MergeRecentSKUs(recent, skus, 10, now)
	require.Len(t, recent, 10)
	assert.Equal(t, "l", recent[9].SKU)
	assert.Equal(t, "c", recent[0].SKU)
}

func TestPrependRecent(t *testing.T) {
	var recent []domain.RecentItem
	for i := 0; i < 60; i++ {
		recent = PrependRecent(recent, domain.RecentItem{Product: i}, 50)
	}
	require.Len(t, recent, 50)
	assert.Equal(t, 59, recent[0].Product)
	assert.Equal(t, 10, recent[49].Product)
}

func TestAppendChat(t *testing.T) {
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Minute)

	history, appended := AppendChat(nil, domain.ChatEntry{Sender: "user", Message: "hi", Timestamp: first})
	assert.True(t, appended)

	history, appended = AppendChat(history, domain.ChatEntry{Sender: "user", Message: "hi", Timestamp: later, Metadata: map[string]any{"k": "v"}})
	assert.False(t, appended)
	require.Len(t, history, 1)
	assert.Equal(t, later, history[0].Timestamp)
	assert.Equal(t, "v", history[0].Metadata["k"])

	history, appended = AppendChat(history, domain.ChatEntry{Sender: "agent", Message: "hi", Timestamp: later})
	assert.True(t, appended)
	assert.Len(t, history, 2)
}

func TestSanitizeShippingAddress(t *testing.T) {
	got := SanitizeShippingAddress(map[string]any{
		"city":          "  Pune ",
		"landmark":      "",
		"building_name": "Tower B",
		"zip":           "411001",
	})
	assert.Equal(t, map[string]string{"city": "Pune", "building": "Tower B"}, got)

	got = SanitizeShippingAddress(map[string]any{"building": "A", "building_name": "B"})
	assert.Equal(t, "A", got["building"])

	assert.Nil(t, SanitizeShippingAddress("Pune"))
	assert.Nil(t, SanitizeShippingAddress(map[string]any{"zip": "1"}))
}
