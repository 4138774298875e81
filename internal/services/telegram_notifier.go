package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
)

// TelegramChannel отправляет уведомления о заказах в чат через Bot API
type TelegramChannel struct {
	client  *http.Client
	log     *logger.Logger
	token   string
	chatID  string
	baseURL string
}

// NewTelegramChannel создаёт канал Telegram. Без токена или чата канал только логирует сообщение.
func NewTelegramChannel(cfg *config.NotificationConfig, log *logger.Logger) *TelegramChannel {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(cfg.TelegramBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramChannel{
		client:  &http.Client{Timeout: timeout},
		log:     log,
		token:   cfg.TelegramBotToken,
		chatID:  cfg.TelegramChatID,
		baseURL: baseURL,
	}
}

// Name имя канала в логах и результатах рассылки
func (c *TelegramChannel) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send отправляет сообщение о заказе
func (c *TelegramChannel) Send(ctx context.Context, order *models.Order) error {
	text := FormatOrderMessage(order)

	if c.token == "" || c.chatID == "" {
		c.log.WithOrder(order.OrderID).WithField("message", text).Info("Telegram not configured, logging order notification")
		return ErrChannelNotConfigured
	}

	payload, err := json.Marshal(telegramMessage{ChatID: c.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
