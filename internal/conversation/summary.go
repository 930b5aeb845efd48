package conversation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Rrens/omnichannel-session/internal/domain"
)

// SummaryOptions tunes summary regeneration
type SummaryOptions struct {
	Every           int
	Window          int
	StageWindow     int
	MaxProducts     int
	ProductKeywords []string
	Stages          RuleSet
	DefaultStage    string
}

// DefaultSummaryOptions returns the options used when nothing is configured
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		Every:           6,
		Window:          10,
		StageWindow:     3,
		MaxProducts:     3,
		ProductKeywords: DefaultProductKeywords(),
		Stages:          DefaultStageRules(),
		DefaultStage:    "browsing",
	}
}

// ShouldSummarize reports whether a history of n entries is due for a new summary
func ShouldSummarize(n, every int) bool {
	if every <= 0 {
		return false
	}
	return n >= every && n%every == 0
}

// Summarize builds a one-line summary of the recent chat history.
// It returns "" when there is nothing the user said to summarize.
func Summarize(history []domain.ChatEntry, opts SummaryOptions) string {
	if len(history) < 2 {
		return ""
	}

	recent := history
	if opts.Window > 0 && len(recent) > opts.Window {
		recent = recent[len(recent)-opts.Window:]
	}

	var userMsgs []string
	for _, entry := range recent {
		if entry.Sender == domain.SenderUser {
			userMsgs = append(userMsgs, strings.ToLower(entry.Message))
		}
	}
	if len(userMsgs) == 0 {
		return ""
	}

	var products []string
	for _, msg := range userMsgs {
		for _, kw := range opts.ProductKeywords {
			if strings.Contains(msg, kw) && !slices.Contains(products, kw) {
				products = append(products, kw)
			}
		}
	}

	tail := userMsgs
	if opts.StageWindow > 0 && len(tail) > opts.StageWindow {
		tail = tail[len(tail)-opts.StageWindow:]
	}
	stage, ok := opts.Stages.Match(strings.Join(tail, " "))
	if !ok {
		stage = opts.DefaultStage
	}

	productText := "products"
	if len(products) > 0 {
		if opts.MaxProducts > 0 && len(products) > opts.MaxProducts {
			products = products[:opts.MaxProducts]
		}
		productText = strings.Join(products, ", ") + "s"
	}

	return fmt.Sprintf("Customer is %s - interested in %s. %d interactions so far.", stage, productText, len(userMsgs))
}
