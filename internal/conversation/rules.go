// Package conversation holds the pure heuristics applied to chat history:
// keyword intent rules, summary regeneration, SKU extraction and address cleanup.
package conversation

import "strings"

// Intent results produced by DefaultIntentRules
const (
	IntentPurchase   = "purchase_intent"
	IntentCartUpdate = "cart_update"
	IntentBrowsing   = "browsing"
)

// Rule maps a keyword set to a result
type Rule struct {
	Result   string   `mapstructure:"result" json:"result"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// RuleSet is evaluated top to bottom; the first rule with a matching keyword wins
type RuleSet []Rule

// Match returns the result of the first rule whose keywords occur in text.
// Matching is case-insensitive substring containment.
func (rs RuleSet) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, rule := range rs {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return rule.Result, true
			}
		}
	}
	return "", false
}

// DefaultIntentRules returns the built-in intent table: purchase, then cart, then browsing
func DefaultIntentRules() RuleSet {
	return RuleSet{
		{Result: IntentPurchase, Keywords: []string{"buy", "purchase", "checkout", "order", "payment", "pay"}},
		{Result: IntentCartUpdate, Keywords: []string{"add to cart", "add cart", "cart"}},
		{Result: IntentBrowsing, Keywords: []string{"show", "recommend", "looking", "want", "need", "find", "search"}},
	}
}

// DefaultStageRules returns the summary stage table, highest priority first
func DefaultStageRules() RuleSet {
	return RuleSet{
		{Result: "ready to purchase", Keywords: []string{"buy", "purchase", "order", "checkout", "cart", "payment"}},
		{Result: "comparing options", Keywords: []string{"compare", "difference", "between", "better"}},
	}
}

// DefaultProductKeywords is the product vocabulary scanned for summaries
func DefaultProductKeywords() []string {
	return []string{"shoe", "shirt", "pant", "jacket", "sneaker", "tshirt", "jeans", "hoodie", "running", "casual", "formal"}
}
