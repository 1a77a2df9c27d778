package alerting

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"listing-radar/internal/scoring"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultEmbedColor = 5814783

var embedColors = map[scoring.Label]int{
	scoring.LabelHiddenGem:   3066993,
	scoring.LabelSpeculative: 15105570,
	scoring.LabelGoodDeal:    5763719,
	scoring.LabelToxic:       10038562,
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	URL         string `json:"url,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a Discord webhook notifier.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Name implements Notifier.
func (n *DiscordNotifier) Name() string { return "discord" }

// Notify posts a single embed describing note.
func (n *DiscordNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{renderEmbed(note)}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("listing_id", note.ListingID).
		Str("label", string(note.Label)).
		Int("score", note.Score).
		Msg("notification sent")
	return nil
}

func renderEmbed(note Notification) discordEmbed {
	color, ok := embedColors[note.Label]
	if !ok {
		color = defaultEmbedColor
	}

	d := strings.Builder{}
	d.WriteString(fmt.Sprintf("**%s**\n", note.Title))
	d.WriteString(fmt.Sprintf("**%s %s**", note.Price.StringFixed(0), note.Currency))
	if note.Change == ChangePrice && note.OldPrice != nil {
		d.WriteString(fmt.Sprintf(" (was %s)", note.OldPrice.StringFixed(0)))
	}
	d.WriteString("\n")

	if note.Explanation != "" {
		d.WriteString(fmt.Sprintf("\n*\"%s\"*\n", note.Explanation))
	}

	d.WriteString("\n**Signals**\n")
	d.WriteString(fmt.Sprintf("- Z-score: %.2f (price points %d/50)\n", note.Z, int(math.Ceil(note.PricePoints))))
	d.WriteString(fmt.Sprintf("- Peer median: %.0f %s\n", note.PeerMedian, note.BaseUnit))
	if note.Velocity > 0 {
		d.WriteString(fmt.Sprintf("- Velocity: %.2f%% per hour\n", note.Velocity*100))
	}
	if len(note.Flags) > 0 {
		d.WriteString("\n**Risk:** " + joinFlags(note.Flags, ", ", "`"))
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("%s (%d) - %s %s", note.Label, note.Score, note.Brand, note.Category),
		Description: d.String(),
		Color:       color,
		URL:         note.URL,
	}
	if !note.EvaluatedAt.IsZero() {
		embed.Timestamp = note.EvaluatedAt.UTC().Format(time.RFC3339)
	}
	return embed
}

func joinFlags(flags []scoring.Flag, sep, quote string) string {
	return strings.Join(lo.Map(flags, func(f scoring.Flag, _ int) string {
		return quote + string(f) + quote
	}), sep)
}

var _ Notifier = (*DiscordNotifier)(nil)
