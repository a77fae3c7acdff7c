package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// MessageSender sends raw Lark IM payloads
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Messenger implements port.LarkMessageSender interface
type Messenger struct {
	sender MessageSender
	logger *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(sender MessageSender, logger *zap.Logger) *Messenger {
	return &Messenger{
		sender: sender,
		logger: logger,
	}
}

// SendMessage sends a text message to a user
// Implements port.LarkMessageSender interface
func (m *Messenger) SendMessage(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}

	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	textContent, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}

	if _, err := m.sender.SendMessage(ctx, "open_id", openID, "text", string(textContent)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// SendCardMessage sends a card message to a user
// Implements port.LarkMessageSender interface
func (m *Messenger) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}

	if cardContent == nil {
		return fmt.Errorf("cardContent cannot be nil")
	}

	cardJSON, err := json.Marshal(cardContent)
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	if _, err := m.sender.SendMessage(ctx, "open_id", openID, "interactive", string(cardJSON)); err != nil {
		return fmt.Errorf("failed to send card message: %w", err)
	}

	return nil
}
