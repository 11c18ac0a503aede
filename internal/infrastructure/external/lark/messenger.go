package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
)

const receiveIDTypeChat = "chat_id"

// messageSender is satisfied by *MessageAPI
type messageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Messenger implements port.MessageSender by posting to one group chat
type Messenger struct {
	messageAPI messageSender
	chatID     string
	logger     *zap.Logger
}

// NewMessenger creates a messenger bound to cfg.ChatID
func NewMessenger(cfg Config, logger *zap.Logger) (*Messenger, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("lark app_id, app_secret and chat_id are required")
	}
	return &Messenger{
		messageAPI: NewMessageAPI(NewSDKClient(cfg, logger), logger),
		chatID:     cfg.ChatID,
		logger:     logger,
	}, nil
}

// SendText posts a plain-text message to the configured chat
func (m *Messenger) SendText(ctx context.Context, content string) error {
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	textContent, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}

	if _, err := m.messageAPI.SendMessage(ctx, receiveIDTypeChat, m.chatID, "text", string(textContent)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

var _ port.MessageSender = (*Messenger)(nil)
