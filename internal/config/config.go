package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates all service configuration. It is built once at startup
// and passed to each component; there is no ambient global lookup.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Telegram TelegramConfig
	Twilio   TwilioConfig
	AI       AIConfig
	Call     CallConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	telegram, err := loadTelegramConfig()
	if err != nil {
		return nil, err
	}

	twilio, err := loadTwilioConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	callCfg, err := loadCallConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Store:    StoreConfig{Path: getEnvOrDefault("SQLITE_PATH", "data/state.db")},
		Telegram: telegram,
		Twilio:   twilio,
		AI:       ai,
		Call:     callCfg,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig describes the sqlite database location.
type StoreConfig struct {
	Path string
}

// TelegramConfig describes the message source.
type TelegramConfig struct {
	BotToken      string
	PollLimit     int
	AllowedChatID int64
	Timeout       time.Duration
}

func loadTelegramConfig() (TelegramConfig, error) {
	pollLimit := 50
	if override, err := parseOptionalIntEnv("TELEGRAM_POLL_LIMIT"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 100 {
			return TelegramConfig{}, fmt.Errorf("TELEGRAM_POLL_LIMIT must be between 1 and 100, got %d", *override)
		}
		pollLimit = *override
	}

	var allowedChatID int64
	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_ALLOWED_CHAT_ID")); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return TelegramConfig{}, fmt.Errorf("invalid TELEGRAM_ALLOWED_CHAT_ID value %q: %w", raw, err)
		}
		allowedChatID = val
	}

	timeoutSeconds := 10
	if override, err := parseOptionalIntEnv("REQUEST_TIMEOUT_SECONDS"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 60 {
			return TelegramConfig{}, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be between 1 and 60, got %d", *override)
		}
		timeoutSeconds = *override
	}

	return TelegramConfig{
		BotToken:      strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		PollLimit:     pollLimit,
		AllowedChatID: allowedChatID,
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// TwilioConfig describes webhook validation and voice rendering options.
type TwilioConfig struct {
	AuthToken         string
	ValidateSignature bool
	Voice             string
	Language          string
	BaseURL           string
}

func loadTwilioConfig() (TwilioConfig, error) {
	validate, err := parseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false)
	if err != nil {
		return TwilioConfig{}, err
	}

	return TwilioConfig{
		AuthToken:         strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		ValidateSignature: validate,
		Voice:             getEnvOrDefault("TWILIO_VOICE", "Polly.Joanna"),
		Language:          getEnvOrDefault("TWILIO_LANGUAGE", "en-US"),
		BaseURL:           strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/"),
	}, nil
}

// AIConfig describes the Ark chat model used for summaries and answers.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat model instance from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing, set ARK_API_KEY + ARK_MODEL or the AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 15
	if override, err := parseOptionalIntEnv("ARK_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// CallConfig bounds a single call's session.
type CallConfig struct {
	MaxMessagesPerCall int
	MaxFollowupTurns   int
	SessionTTL         time.Duration
}

func loadCallConfig() (CallConfig, error) {
	maxMessages := 8
	if override, err := parseOptionalIntEnv("MAX_MESSAGES_PER_CALL"); err != nil {
		return CallConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 50 {
			return CallConfig{}, fmt.Errorf("MAX_MESSAGES_PER_CALL must be between 1 and 50, got %d", *override)
		}
		maxMessages = *override
	}

	maxTurns := 6
	if override, err := parseOptionalIntEnv("MAX_FOLLOWUP_TURNS"); err != nil {
		return CallConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 20 {
			return CallConfig{}, fmt.Errorf("MAX_FOLLOWUP_TURNS must be between 1 and 20, got %d", *override)
		}
		maxTurns = *override
	}

	ttlMinutes := 240
	if override, err := parseOptionalIntEnv("CALL_SESSION_TTL_MINUTES"); err != nil {
		return CallConfig{}, err
	} else if override != nil {
		if *override < 5 || *override > 1440 {
			return CallConfig{}, fmt.Errorf("CALL_SESSION_TTL_MINUTES must be between 5 and 1440, got %d", *override)
		}
		ttlMinutes = *override
	}

	return CallConfig{
		MaxMessagesPerCall: maxMessages,
		MaxFollowupTurns:   maxTurns,
		SessionTTL:         time.Duration(ttlMinutes) * time.Minute,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
