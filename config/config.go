package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Query modes.
const (
	QueryKeyword  = "keyword"
	QueryCategory = "category"
)

// Keyword sources.
const (
	KeywordsFromFile      = "file"
	KeywordsFromGenerator = "generated"
)

// Config holds all application configuration. It is built once at start-up
// and passed explicitly to every component that needs it.
type Config struct {
	AliAppKey     string
	AliSecret     string
	AliTrackingID string
	GeminiAPIKey  string

	AliEndpoint   string
	AliCurrency   string
	AliLanguage   string
	AliSort       string
	AliPageSize   int
	QueryMode     string
	CategoryIDs   []string
	KeywordSource string
	KeywordFile   string

	GeminiBaseURL        string
	GeminiAPIVersions    []string
	GeminiModels         []string
	GeminiDiscoverModels bool
	GeneratorBackend     string

	PostsDir      string
	LedgerPath    string
	LedgerDSN     string
	PostLayout    string
	FilenameStyle string
	SiteURL       string
	SEOOutputDir  string

	TargetPosts int
	MaxQueries  int
	MaxRetries  int
	RetryBase   time.Duration
	RetryMax    time.Duration
	RateLimit   time.Duration
	HTTPTimeout time.Duration

	LogLevel       string
	LogFormat      string
	PushgatewayURL string
}

var defaults = map[string]any{
	"ALI_ENDPOINT":           "https://api-sg.aliexpress.com/sync",
	"ALI_TARGET_CURRENCY":    "USD",
	"ALI_TARGET_LANGUAGE":    "EN",
	"ALI_SORT":               "LAST_VOLUME_DESC",
	"ALI_PAGE_SIZE":          5,
	"QUERY_MODE":             QueryKeyword,
	"CATEGORY_IDS":           "",
	"KEYWORD_SOURCE":         KeywordsFromFile,
	"KEYWORD_FILE":           "keywords.txt",
	"GEMINI_BASE_URL":        "https://generativelanguage.googleapis.com",
	"GEMINI_API_VERSIONS":    "v1beta,v1",
	"GEMINI_MODELS":          "gemini-2.5-flash,gemini-2.0-flash,gemini-1.5-flash",
	"GEMINI_DISCOVER_MODELS": false,
	"GENERATOR_BACKEND":      "rest",
	"POSTS_DIR":              "posts",
	"LEDGER_PATH":            "posted_ids.txt",
	"LEDGER_DSN":             "",
	"POST_LAYOUT":            "",
	"FILENAME_STYLE":         "id",
	"SITE_URL":               "",
	"SEO_OUTPUT_DIR":         ".",
	"TARGET_POSTS":           1,
	"MAX_QUERIES":            5,
	"MAX_RETRIES":            3,
	"RETRY_BASE_MS":          2000,
	"RETRY_MAX_MS":           60000,
	"RATE_LIMIT_MS":          1000,
	"HTTP_TIMEOUT_SEC":       60,
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "console",
	"PUSHGATEWAY_URL":        "",
}

// Load reads the .env file and an optional config file, then returns a
// populated Config. Environment variables take precedence over the file.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", configFile, err)
		}
	}

	secret := v.GetString("ALI_SECRET")
	if strings.TrimSpace(secret) == "" {
		secret = v.GetString("ALI_APP_SECRET")
	}

	cfg := &Config{
		AliAppKey:     secretValue("ALI_APP_KEY", v.GetString("ALI_APP_KEY")),
		AliSecret:     secretValue("ALI_SECRET", secret),
		AliTrackingID: secretValue("ALI_TRACKING_ID", v.GetString("ALI_TRACKING_ID")),
		GeminiAPIKey:  secretValue("GEMINI_API_KEY", v.GetString("GEMINI_API_KEY")),

		AliEndpoint:   v.GetString("ALI_ENDPOINT"),
		AliCurrency:   v.GetString("ALI_TARGET_CURRENCY"),
		AliLanguage:   v.GetString("ALI_TARGET_LANGUAGE"),
		AliSort:       strings.TrimSpace(v.GetString("ALI_SORT")),
		AliPageSize:   v.GetInt("ALI_PAGE_SIZE"),
		QueryMode:     strings.ToLower(v.GetString("QUERY_MODE")),
		CategoryIDs:   getList(v, "CATEGORY_IDS"),
		KeywordSource: strings.ToLower(v.GetString("KEYWORD_SOURCE")),
		KeywordFile:   v.GetString("KEYWORD_FILE"),

		GeminiBaseURL:        strings.TrimRight(v.GetString("GEMINI_BASE_URL"), "/"),
		GeminiAPIVersions:    getList(v, "GEMINI_API_VERSIONS"),
		GeminiModels:         getList(v, "GEMINI_MODELS"),
		GeminiDiscoverModels: v.GetBool("GEMINI_DISCOVER_MODELS"),
		GeneratorBackend:     strings.ToLower(v.GetString("GENERATOR_BACKEND")),

		PostsDir:      v.GetString("POSTS_DIR"),
		LedgerPath:    v.GetString("LEDGER_PATH"),
		LedgerDSN:     strings.TrimSpace(v.GetString("LEDGER_DSN")),
		PostLayout:    v.GetString("POST_LAYOUT"),
		FilenameStyle: strings.ToLower(v.GetString("FILENAME_STYLE")),
		SiteURL:       strings.TrimRight(v.GetString("SITE_URL"), "/"),
		SEOOutputDir:  v.GetString("SEO_OUTPUT_DIR"),

		TargetPosts: v.GetInt("TARGET_POSTS"),
		MaxQueries:  v.GetInt("MAX_QUERIES"),
		MaxRetries:  v.GetInt("MAX_RETRIES"),
		RetryBase:   time.Duration(v.GetInt("RETRY_BASE_MS")) * time.Millisecond,
		RetryMax:    time.Duration(v.GetInt("RETRY_MAX_MS")) * time.Millisecond,
		RateLimit:   time.Duration(v.GetInt("RATE_LIMIT_MS")) * time.Millisecond,
		HTTPTimeout: time.Duration(v.GetInt("HTTP_TIMEOUT_SEC")) * time.Second,

		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		PushgatewayURL: strings.TrimSpace(v.GetString("PUSHGATEWAY_URL")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the settings that select code paths. Credentials are not
// validated; a bad key surfaces as an API error.
func (c *Config) validate() error {
	switch c.QueryMode {
	case QueryKeyword:
	case QueryCategory:
		if len(c.CategoryIDs) == 0 {
			return fmt.Errorf("config: QUERY_MODE=category requires CATEGORY_IDS")
		}
	default:
		return fmt.Errorf("config: unknown QUERY_MODE %q", c.QueryMode)
	}

	switch c.KeywordSource {
	case KeywordsFromFile, KeywordsFromGenerator:
	default:
		return fmt.Errorf("config: unknown KEYWORD_SOURCE %q", c.KeywordSource)
	}

	switch c.GeneratorBackend {
	case "rest", "sdk":
	default:
		return fmt.Errorf("config: unknown GENERATOR_BACKEND %q", c.GeneratorBackend)
	}

	switch c.FilenameStyle {
	case "id", "slug":
	default:
		return fmt.Errorf("config: unknown FILENAME_STYLE %q", c.FilenameStyle)
	}

	if len(c.GeminiModels) == 0 {
		return fmt.Errorf("config: GEMINI_MODELS must name at least one model")
	}
	if len(c.GeminiAPIVersions) == 0 {
		c.GeminiAPIVersions = []string{"v1beta"}
	}
	if c.TargetPosts < 1 {
		c.TargetPosts = 1
	}
	if c.MaxQueries < 1 {
		c.MaxQueries = 1
	}
	if c.AliPageSize < 1 {
		c.AliPageSize = 5
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.AliAppKey = mask(c.AliAppKey)
	out.AliSecret = mask(c.AliSecret)
	out.AliTrackingID = mask(c.AliTrackingID)
	out.GeminiAPIKey = mask(c.GeminiAPIKey)
	out.LedgerDSN = mask(c.LedgerDSN)
	return out
}

func secretValue(name, raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		log.Printf("[config] %s is not set", name)
	}
	return val
}

// getList accepts either a comma separated string (env) or a list (config file).
func getList(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	case []string:
		parts = raw
	case []any:
		for _, p := range raw {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
