package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Name implements Notifier.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify calls sendMessage with a plain-text rendering of note.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     renderText(note),
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("listing_id", note.ListingID).
		Str("label", string(note.Label)).
		Int("score", note.Score).
		Msg("notification sent")
	return nil
}

func renderText(note Notification) string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("[%s %d] %s %s\n", note.Label, note.Score, note.Brand, note.Category))
	b.WriteString(note.Title + "\n")
	b.WriteString(fmt.Sprintf("Price: %s %s", note.Price.StringFixed(0), note.Currency))
	if note.Change == ChangePrice && note.OldPrice != nil {
		b.WriteString(fmt.Sprintf(" (was %s)", note.OldPrice.StringFixed(0)))
	}
	b.WriteString("\n")
	if note.Explanation != "" {
		b.WriteString(note.Explanation + "\n")
	}
	b.WriteString(fmt.Sprintf("Z: %.2f, peer median %.0f %s\n", note.Z, note.PeerMedian, note.BaseUnit))
	if len(note.Flags) > 0 {
		b.WriteString("Risk: " + joinFlags(note.Flags, ", ", "") + "\n")
	}
	if note.URL != "" {
		b.WriteString(note.URL)
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
