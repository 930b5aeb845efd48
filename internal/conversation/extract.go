package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/omnichannel-session/internal/domain"
)

var skuFields = []string{"sku", "SKU", "product_id"}

// ExtractSKUs pulls SKUs out of metadata["cards"], trying sku, SKU then product_id per card
func ExtractSKUs(metadata map[string]any) []string {
	if metadata == nil {
		return nil
	}
	cards, ok := metadata["cards"].([]any)
	if !ok {
		if typed, ok := metadata["cards"].([]map[string]any); ok {
			for _, c := range typed {
				cards = append(cards, c)
			}
		}
	}

	var skus []string
	for _, raw := range cards {
		card, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, field := range skuFields {
			if sku := stringify(card[field]); sku != "" {
				skus = append(skus, sku)
				break
			}
		}
	}
	return skus
}

// MergeRecentSKUs appends SKUs not already present and keeps the newest limit entries
func MergeRecentSKUs(recent []domain.RecentItem, skus []string, limit int, now time.Time) []domain.RecentItem {
	for _, sku := range skus {
		if containsSKU(recent, sku) {
			continue
		}
		recent = append(recent, domain.RecentItem{SKU: sku, ViewedAt: now})
	}
	if limit > 0 && len(recent) > limit {
		recent = append([]domain.RecentItem(nil), recent[len(recent)-limit:]...)
	}
	return recent
}

// PrependRecent inserts a viewed product at the front, dropping the oldest past limit
func PrependRecent(recent []domain.RecentItem, item domain.RecentItem, limit int) []domain.RecentItem {
	out := make([]domain.RecentItem, 0, len(recent)+1)
	out = append(out, item)
	out = append(out, recent...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsSKU(recent []domain.RecentItem, sku string) bool {
	for _, r := range recent {
		if r.SKU == sku {
			return true
		}
		if s, ok := r.Product.(string); ok && s == sku {
			return true
		}
	}
	return false
}

// AppendChat appends entry unless it repeats the previous sender and message,
// in which case the previous entry's timestamp (and metadata, if supplied) is refreshed.
// It reports whether a new entry was appended.
func AppendChat(history []domain.ChatEntry, entry domain.ChatEntry) ([]domain.ChatEntry, bool) {
	if n := len(history); n > 0 {
		last := &history[n-1]
		if last.Sender == entry.Sender && last.Message == entry.Message {
			last.Timestamp = entry.Timestamp
			if entry.Metadata != nil {
				last.Metadata = entry.Metadata
			}
			return history, false
		}
	}
	return append(history, entry), true
}

// SanitizeShippingAddress keeps the city, landmark and building fields of a raw address
func SanitizeShippingAddress(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	out := map[string]string{}
	set := func(key string, value any) {
		if _, done := out[key]; done {
			return
		}
		if s := strings.TrimSpace(stringify(value)); s != "" {
			out[key] = s
		}
	}
	set("city", m["city"])
	set("landmark", m["landmark"])
	set("building", m["building"])
	set("building", m["building_name"])

	if len(out) == 0 {
		return nil
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
