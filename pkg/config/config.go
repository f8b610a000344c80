package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config collects every environment-driven knob. Values come from the
// process environment, with .env loaded first when present.
type Config struct {
	ServerPort string
	JWTSecret  string

	DBPath     string
	TokensFile string

	UseMockFeed  bool
	BinanceWSURL string

	AdvisorEndpoint string
	AdvisorAPIKey   string
	AdvisorModel    string
	AdvisorRPM      float64

	StartBalance float64
	ScanInterval time.Duration

	TelegramToken  string
	TelegramChatID string
}

// Load reads .env (optional) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] no .env file, using environment only")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "dev-only-secret"),

		DBPath:     getEnv("DB_PATH", "perptrader.db"),
		TokensFile: getEnv("TOKENS_FILE", "tokens.yaml"),

		UseMockFeed:  getEnvBool("USE_MOCK_FEED", false),
		BinanceWSURL: getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),

		AdvisorEndpoint: getEnv("ADVISOR_ENDPOINT", ""),
		AdvisorAPIKey:   getEnv("ADVISOR_API_KEY", ""),
		AdvisorModel:    getEnv("ADVISOR_MODEL", "remote-analyst"),
		AdvisorRPM:      getEnvFloat("ADVISOR_RPM", 10),

		StartBalance: getEnvFloat("START_BALANCE", 10000),
		ScanInterval: getEnvDuration("SCAN_INTERVAL", 30*time.Second),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// TokenUniverse is the tradable symbol list loaded from tokens.yaml.
type TokenUniverse struct {
	Symbols []TokenEntry `yaml:"symbols"`
}

// TokenEntry names one tradable perpetual contract.
type TokenEntry struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// LoadTokens parses the symbol universe file.
func LoadTokens(path string) (*TokenUniverse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	var universe TokenUniverse
	if err := yaml.Unmarshal(raw, &universe); err != nil {
		return nil, fmt.Errorf("parse tokens file: %w", err)
	}
	if len(universe.Symbols) == 0 {
		return nil, fmt.Errorf("tokens file %s lists no symbols", path)
	}
	return &universe, nil
}

// SymbolList flattens the universe to plain symbols.
func (u *TokenUniverse) SymbolList() []string {
	out := make([]string, 0, len(u.Symbols))
	for _, t := range u.Symbols {
		out = append(out, t.Symbol)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[CONFIG] invalid bool for %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[CONFIG] invalid number for %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG] invalid duration for %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
