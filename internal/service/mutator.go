package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/omnichannel-session/internal/conversation"
	"github.com/Rrens/omnichannel-session/internal/domain"
)

// Mutator applies named actions to a session payload. It performs no I/O.
type Mutator struct {
	recentLimit            int
	recommendedRecentLimit int
	intents                conversation.RuleSet
	summary                conversation.SummaryOptions
}

// Mutation carries the side effects of an applied action that need I/O
type Mutation struct {
	ShippingAddress map[string]string
}

// NewMutator creates a mutator from session options
func NewMutator(opts SessionOptions) *Mutator {
	return &Mutator{
		recentLimit:            opts.RecentLimit,
		recommendedRecentLimit: opts.RecommendedRecentLimit,
		intents:                opts.IntentRules,
		summary:                opts.Summary,
	}
}

// Apply mutates s in place. On error s must be discarded by the caller.
func (m *Mutator) Apply(s *domain.Session, action string, payload map[string]any, now time.Time) (Mutation, error) {
	var (
		out Mutation
		err error
	)

	switch action {
	case domain.ActionAddToCart:
		err = m.addToCart(s, payload, now)
	case domain.ActionViewProduct:
		err = m.viewProduct(s, payload, now)
	case domain.ActionChatMessage:
		out, err = m.chatMessage(s, payload, now)
	case domain.ActionSetUser:
		err = m.setUser(s, payload)
	default:
		return out, &domain.ActionError{Action: action}
	}
	if err != nil {
		return out, err
	}

	s.UpdatedAt = now
	return out, nil
}

func (m *Mutator) addToCart(s *domain.Session, payload map[string]any, now time.Time) error {
	item, ok := payload["item"]
	if !ok || item == nil {
		return &domain.FieldError{Action: domain.ActionAddToCart, Field: "item"}
	}

	s.Data.Cart = append(s.Data.Cart, item)
	s.Data.LastAction = &domain.LastAction{
		Type:      domain.ActionAddToCart,
		Item:      item,
		Timestamp: now,
	}
	return nil
}

func (m *Mutator) viewProduct(s *domain.Session, payload map[string]any, now time.Time) error {
	product := payload["product"]
	if isBlank(product) {
		product = payload["product_id"]
	}
	if isBlank(product) {
		return &domain.FieldError{Action: domain.ActionViewProduct, Field: "product"}
	}

	s.Data.Recent = conversation.PrependRecent(s.Data.Recent, domain.RecentItem{
		Product:  product,
		ViewedAt: now,
	}, m.recentLimit)
	s.Data.LastAction = &domain.LastAction{
		Type:      domain.ActionViewProduct,
		Product:   product,
		Timestamp: now,
	}
	return nil
}

func (m *Mutator) chatMessage(s *domain.Session, payload map[string]any, now time.Time) (Mutation, error) {
	var out Mutation

	raw, ok := payload["message"]
	if !ok || raw == nil {
		return out, &domain.FieldError{Action: domain.ActionChatMessage, Field: "message"}
	}
	message, ok := raw.(string)
	if !ok {
		message = fmt.Sprint(raw)
	}

	sender, _ := payload["sender"].(string)
	if sender == "" {
		sender = domain.SenderUser
	}
	metadata, _ := payload["metadata"].(map[string]any)

	s.Data.ChatContext, _ = conversation.AppendChat(s.Data.ChatContext, domain.ChatEntry{
		Sender:    sender,
		Message:   message,
		Timestamp: now,
		Metadata:  metadata,
	})

	if sender == domain.SenderUser && message != "" {
		if intent, ok := m.intents.Match(message); ok {
			s.Data.LastAction = &domain.LastAction{
				Type:      intent,
				Sender:    domain.SenderUser,
				Timestamp: now,
			}
		}
	}

	if sender == domain.SenderAgent {
		if skus := conversation.ExtractSKUs(metadata); len(skus) > 0 {
			s.Data.LastRecommendedSKUs = skus
			s.Data.Recent = conversation.MergeRecentSKUs(s.Data.Recent, skus, m.recommendedRecentLimit, now)
		}
	}

	if conversation.ShouldSummarize(len(s.Data.ChatContext), m.summary.Every) {
		if summary := conversation.Summarize(s.Data.ChatContext, m.summary); summary != "" {
			s.Data.ConversationSummary = summary
		}
	}

	if metadata != nil {
		if address := conversation.SanitizeShippingAddress(metadata["shipping_address"]); len(address) > 0 {
			s.Data.ShippingAddress = address
			out.ShippingAddress = address
		}
	}

	if s.Data.LastAction == nil {
		s.Data.LastAction = &domain.LastAction{
			Type:      domain.ActionChatMessage,
			Sender:    sender,
			Timestamp: now,
		}
	}
	return out, nil
}

func (m *Mutator) setUser(s *domain.Session, payload map[string]any) error {
	userID, _ := payload["user_id"].(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &domain.FieldError{Action: domain.ActionSetUser, Field: "user_id"}
	}
	s.UserID = userID
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
