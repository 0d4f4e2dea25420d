// README: Config loader; env defaults, optional .env file and YAML tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type SessionConfig struct {
	// Store selects the session backend: "memory" or "redis".
	Store        string `yaml:"store"`
	IdleMinutes  int    `yaml:"idle_minutes"`
	SweepSeconds int    `yaml:"sweep_seconds"`
}

func (c SessionConfig) Idle() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

type TariffBucket struct {
	Name     string  `yaml:"name"`
	MaxKm    float64 `yaml:"max_km"`
	MinPrice int64   `yaml:"min_price"`
	MaxPrice int64   `yaml:"max_price"`
}

type TariffConfig struct {
	Buckets        []TariffBucket `yaml:"buckets"`
	PerKmBeyond    int64          `yaml:"per_km_beyond"`
	PetSurcharge   int64          `yaml:"pet_surcharge"`
	PinkSurcharge  int64          `yaml:"pink_surcharge"`
	NightSurcharge int64          `yaml:"night_surcharge"`
	NightStartHour int            `yaml:"night_start_hour"`
	NightEndHour   int            `yaml:"night_end_hour"`
	RoundTo        int64          `yaml:"round_to"`
	// RoadFactor turns straight-line distance into an approximate driving distance.
	RoadFactor float64 `yaml:"road_factor"`
	// SameCityKm and CrossCityKm are the assumed distances when no geocoder is configured.
	SameCityKm        float64  `yaml:"same_city_km"`
	CrossCityKm       float64  `yaml:"cross_city_km"`
	DefaultCity       string   `yaml:"default_city"`
	Cities            []string `yaml:"cities"`
	DistanceTimeoutMs int      `yaml:"distance_timeout_ms"`
}

type ValidationConfig struct {
	OpenHour             int     `yaml:"open_hour"`
	CloseHour            int     `yaml:"close_hour"`
	MinAddressLen        int     `yaml:"min_address_len"`
	MaxAddressLen        int     `yaml:"max_address_len"`
	CenterLat            float64 `yaml:"center_lat"`
	CenterLng            float64 `yaml:"center_lng"`
	RadiusKm             float64 `yaml:"radius_km"`
	CashWarningThreshold int64   `yaml:"cash_warning_threshold"`
	MinLeadMinutes       int     `yaml:"min_lead_minutes"`
	MaxLeadHours         int     `yaml:"max_lead_hours"`
	GeocodeTimeoutMs     int     `yaml:"geocode_timeout_ms"`
}

type MemoryConfig struct {
	TopN                   int `yaml:"top_n"`
	MinPersistUses         int `yaml:"min_persist_uses"`
	PersistBatch           int `yaml:"persist_batch"`
	InactivityMinutes      int `yaml:"inactivity_minutes"`
	ReturningUserThreshold int `yaml:"returning_user_threshold"`
}

type AIConfig struct {
	// Provider selects the rephraser: "gemini", "openai" or "" for templates only.
	Provider      string `yaml:"provider"`
	GeminiKey     string `yaml:"-"`
	OpenAIKey     string `yaml:"-"`
	OpenAIModel   string `yaml:"openai_model"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	MonthlyTokens int    `yaml:"monthly_tokens"`
}

type Config struct {
	HTTP struct {
		Addr               string
		RateLimitPerMinute int
		WebhookToken       string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	SQLite struct {
		Path string
	}
	Log struct {
		File       string
		Production bool
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		CheckRevoked    bool
	}
	Maps struct {
		APIKey string
	}
	// PreferenceStore selects "memory", "sqlite" or "postgres".
	PreferenceStore string
	Timezone        string

	Session    SessionConfig    `yaml:"session"`
	Tariff     TariffConfig     `yaml:"tariff"`
	Validation ValidationConfig `yaml:"validation"`
	Memory     MemoryConfig     `yaml:"memory"`
	AI         AIConfig         `yaml:"ai"`
}

// tunables is the subset of Config a YAML file may override.
type tunables struct {
	Session    *SessionConfig    `yaml:"session"`
	Tariff     *TariffConfig     `yaml:"tariff"`
	Validation *ValidationConfig `yaml:"validation"`
	Memory     *MemoryConfig     `yaml:"memory"`
	AI         *AIConfig         `yaml:"ai"`
}

func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Defaults()
	cfg.HTTP.Addr = envOrDefault("NOVO_HTTP_ADDR", ":8080")
	cfg.HTTP.RateLimitPerMinute = envOrDefaultInt("NOVO_RATE_LIMIT_PER_MIN", 30)
	cfg.HTTP.WebhookToken = os.Getenv("NOVO_WEBHOOK_TOKEN")
	// Empty DSN runs without Postgres: no booking table, no AI quota.
	cfg.DB.DSN = os.Getenv("NOVO_DB_DSN")
	cfg.Redis.Addr = envOrDefault("NOVO_REDIS_ADDR", "localhost:6379")
	cfg.SQLite.Path = envOrDefault("NOVO_SQLITE_PATH", "data/preferences.db")
	cfg.Log.File = envOrDefault("NOVO_LOG_FILE", "logs/novobot.log")
	cfg.Log.Production = envOrDefaultBool("NOVO_LOG_PRODUCTION", false)
	cfg.Firebase.ProjectID = os.Getenv("NOVO_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("NOVO_FIREBASE_CREDENTIALS")
	cfg.Firebase.CheckRevoked = envOrDefaultBool("NOVO_FIREBASE_CHECK_REVOKED", false)
	cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	cfg.PreferenceStore = envOrDefault("NOVO_PREFERENCE_STORE", "sqlite")
	cfg.Timezone = envOrDefault("NOVO_TIMEZONE", "America/Argentina/Buenos_Aires")
	cfg.Session.Store = envOrDefault("NOVO_SESSION_STORE", cfg.Session.Store)
	cfg.AI.Provider = envOrDefault("NOVO_AI_PROVIDER", cfg.AI.Provider)
	cfg.AI.GeminiKey = os.Getenv("GEMINI_API_KEY")
	cfg.AI.OpenAIKey = os.Getenv("OPENAI_API_KEY")

	if path := os.Getenv("NOVO_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.validate()
}

// Defaults returns the built-in tunables for Concordia, Entre Ríos.
func Defaults() Config {
	var cfg Config
	cfg.Session = SessionConfig{Store: "memory", IdleMinutes: 30, SweepSeconds: 60}
	cfg.Tariff = TariffConfig{
		Buckets: []TariffBucket{
			{Name: "short", MaxKm: 2, MinPrice: 500, MaxPrice: 800},
			{Name: "medium", MaxKm: 5, MinPrice: 800, MaxPrice: 1200},
			{Name: "long", MaxKm: 15, MinPrice: 1200, MaxPrice: 2000},
		},
		PerKmBeyond:       100,
		PetSurcharge:      200,
		PinkSurcharge:     100,
		NightSurcharge:    150,
		NightStartHour:    22,
		NightEndHour:      6,
		RoundTo:           10,
		RoadFactor:        1.3,
		SameCityKm:        3.5,
		CrossCityKm:       10,
		DefaultCity:       "concordia",
		Cities:            []string{"concordia", "salto", "chajari", "federacion", "colon", "villa elisa", "san jose", "concepcion del uruguay", "gualeguaychu", "parana", "la criolla", "puerto yerua", "estancia grande", "los charruas"},
		DistanceTimeoutMs: 1500,
	}
	cfg.Validation = ValidationConfig{
		OpenHour:             6,
		CloseHour:            23,
		MinAddressLen:        5,
		MaxAddressLen:        200,
		CenterLat:            -31.3927,
		CenterLng:            -58.0209,
		RadiusKm:             15,
		CashWarningThreshold: 5000,
		MinLeadMinutes:       30,
		MaxLeadHours:         24,
		GeocodeTimeoutMs:     1500,
	}
	cfg.Memory = MemoryConfig{
		TopN:                   5,
		MinPersistUses:         3,
		PersistBatch:           5,
		InactivityMinutes:      30,
		ReturningUserThreshold: 2,
	}
	cfg.AI = AIConfig{OpenAIModel: "gpt-4o-mini", TimeoutMs: 2000, MonthlyTokens: 100}
	return cfg
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	t := tunables{Session: &c.Session, Tariff: &c.Tariff, Validation: &c.Validation, Memory: &c.Memory, AI: &c.AI}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	if len(c.Tariff.Buckets) == 0 {
		return fmt.Errorf("config: tariff needs at least one bucket")
	}
	for i := 1; i < len(c.Tariff.Buckets); i++ {
		if c.Tariff.Buckets[i].MaxKm <= c.Tariff.Buckets[i-1].MaxKm {
			return fmt.Errorf("config: tariff buckets must be sorted by max_km")
		}
	}
	if c.Validation.OpenHour < 0 || c.Validation.CloseHour > 24 || c.Validation.OpenHour >= c.Validation.CloseHour {
		return fmt.Errorf("config: invalid business hours [%d,%d)", c.Validation.OpenHour, c.Validation.CloseHour)
	}
	if c.PreferenceStore == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("config: postgres preference store needs NOVO_DB_DSN")
	}
	if c.Memory.TopN <= 0 || c.Memory.PersistBatch <= 0 {
		return fmt.Errorf("config: memory top_n and persist_batch must be positive")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
