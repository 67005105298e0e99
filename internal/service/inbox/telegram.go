package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicemail-bridge/internal/config"
)

// TelegramSource polls the Telegram Bot API getUpdates endpoint.
type TelegramSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewTelegramSource returns a Source for the configured bot, or nil when no
// bot token is set.
func NewTelegramSource(cfg config.TelegramConfig) *TelegramSource {
	if cfg.BotToken == "" {
		return nil
	}
	return &TelegramSource{
		baseURL:    "https://api.telegram.org/bot" + cfg.BotToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Limit          int      `json:"limit"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type getUpdatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []update `json:"result"`
}

type telegramUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *telegramUser `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date int64  `json:"date"`
		Text string `json:"text"`
	} `json:"message"`
}

// Fetch requests one page of updates strictly after afterID.
func (t *TelegramSource) Fetch(ctx context.Context, afterID int64, limit int) ([]Item, error) {
	payload, err := json.Marshal(getUpdatesRequest{
		Offset:         afterID + 1,
		Limit:          limit,
		Timeout:        0,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/getUpdates", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed getUpdatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("telegram: decode response: %w", err)
	}
	if !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = "unknown telegram error"
		}
		return nil, fmt.Errorf("telegram: api error: %s", desc)
	}

	items := make([]Item, 0, len(parsed.Result))
	for _, upd := range parsed.Result {
		item := Item{ExternalID: upd.UpdateID}
		if upd.Message != nil {
			item.ChannelID = upd.Message.Chat.ID
			item.Text = strings.TrimSpace(upd.Message.Text)
			item.Timestamp = time.Unix(upd.Message.Date, 0).UTC()
			item.Sender = senderName(upd.Message.From)
		}
		items = append(items, item)
	}
	return items, nil
}

func senderName(from *telegramUser) string {
	if from == nil {
		return "unknown"
	}
	if from.Username != "" {
		return from.Username
	}
	parts := []string{}
	if from.FirstName != "" {
		parts = append(parts, from.FirstName)
	}
	if from.LastName != "" {
		parts = append(parts, from.LastName)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}
