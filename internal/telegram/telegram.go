package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/report"

	"github.com/sirupsen/logrus"
)

const defaultAPIBase = "https://api.telegram.org"

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	config  *models.TelegramConfig
	filters *models.AlertFilters
	apiBase string
}

func NewService(logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiBase: defaultAPIBase,
	}
}

func (s *Service) UpdateConfig(config *models.TelegramConfig) {
	s.config = config
}

// UpdateFilters replaces the alert filters. A nil filter set allows
// every alert through.
func (s *Service) UpdateFilters(filters *models.AlertFilters) {
	s.filters = filters
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(message string) error {
	if s.config == nil || !s.config.IsEnabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.config.BotToken)
	payload := map[string]interface{}{
		"chat_id":    s.config.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyStaleUnit sends a notification about a unit whose latest recorded
// sale postdates the newest estimate capture for one source.
func (s *Service) NotifyStaleUnit(alert models.StaleAlert) error {
	if s.config == nil || !s.config.IsEnabled {
		return nil
	}

	if !s.filters.IsAlertAllowed(&alert) {
		s.logger.WithFields(logrus.Fields{
			"unit":   alert.UnitNumber,
			"source": alert.Source,
		}).Debug("Stale alert suppressed by filters")
		return nil
	}

	captured := "never"
	if alert.EstimateDate != nil {
		captured = *alert.EstimateDate
	}

	message := fmt.Sprintf(
		"<b>⚠️ Estimate Out of Date</b>\n\n"+
			"🏠 Unit %d\n"+
			"📍 %s\n"+
			"💰 Sold %s for $%s\n"+
			"📊 %s last captured: %s",
		alert.UnitNumber,
		alert.Address,
		alert.SaleDate,
		report.FormatPrice(alert.SalePrice),
		alert.Source.Label(),
		captured,
	)

	return s.SendMessage(message)
}
