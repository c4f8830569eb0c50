// Package config loads and holds all service configuration.
//
// Settings are layered: built-in defaults, then deid-config.json in the
// working directory, then environment variables. A .env file in the working
// directory is loaded into the environment first; variables already set in
// the real environment win over it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clinical-deid/internal/deid"
	"clinical-deid/internal/logger"
)

// FileName is the optional JSON config file read by Load.
const FileName = "deid-config.json"

// Oracle backend names.
const (
	OracleRules      = "rules"
	OracleSidecar    = "sidecar"
	OracleOllama     = "ollama"
	OracleComprehend = "comprehend"
)

var log = logger.New("config", "info")

// Config holds the full service configuration.
type Config struct {
	Port           int    `json:"port"`
	ManagementPort int    `json:"managementPort"`
	BindAddress    string `json:"bindAddress"`
	LogLevel       string `json:"logLevel"`

	Oracle            string `json:"oracle"`
	SidecarURL        string `json:"sidecarURL"`
	OllamaEndpoint    string `json:"ollamaEndpoint"`
	OllamaModel       string `json:"ollamaModel"`
	AWSRegion         string `json:"awsRegion"`
	OracleTimeoutSecs int    `json:"oracleTimeoutSecs"`

	CacheFile     string `json:"cacheFile"`
	CacheCapacity int    `json:"cacheCapacity"`

	MaskStrategy     string   `json:"maskStrategy"`
	TermsFile        string   `json:"termsFile"`
	KeywordsFile     string   `json:"keywordsFile"`
	ClinicalKeywords []string `json:"clinicalKeywords"`
	Cities           []string `json:"cities"`
	ProtectTerms     bool     `json:"protectTerms"`

	ManagementToken string `json:"managementToken"`

	TLSCertFile    string `json:"tlsCertFile"`
	TLSKeyFile     string `json:"tlsKeyFile"`
	UseTLS         bool   `json:"useTLS"`
	MaxUploadBytes int64  `json:"maxUploadBytes"`
}

// Load returns config with defaults overridden by deid-config.json and env vars.
func Load() *Config {
	_ = godotenv.Load() // .env is optional
	cfg := defaults()
	loadFile(cfg, FileName)
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		Port:              8090,
		ManagementPort:    8091,
		BindAddress:       "127.0.0.1",
		LogLevel:          "info",
		Oracle:            OracleRules,
		SidecarURL:        "http://localhost:8001",
		OllamaEndpoint:    "http://localhost:11434",
		OllamaModel:       "qwen2.5:3b",
		OracleTimeoutSecs: 30,
		CacheCapacity:     10000,
		MaskStrategy:      deid.StrategyOffset.String(),
		ClinicalKeywords:  append([]string(nil), deid.DefaultClinicalKeywords...),
		Cities:            append([]string(nil), deid.DefaultCities...),
		TLSCertFile:       "deid-cert.pem",
		TLSKeyFile:        "deid-key.pem",
		MaxUploadBytes:    5 << 20,
	}
}

// OracleTimeout returns the per-call oracle timeout.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSecs) * time.Second
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Oracle {
	case OracleRules, OracleSidecar, OracleOllama, OracleComprehend:
	default:
		return fmt.Errorf("oracle %q: want one of rules, sidecar, ollama, comprehend", c.Oracle)
	}
	if _, err := deid.ParseStrategy(c.MaskStrategy); err != nil {
		return err
	}
	for name, p := range map[string]int{"port": c.Port, "managementPort": c.ManagementPort} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("%s %d out of range", name, p)
		}
	}
	if c.Port == c.ManagementPort {
		return fmt.Errorf("port and managementPort are both %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("maxUploadBytes must be positive")
	}
	return nil
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Warnf("load_file", "could not parse %s: %v", path, err)
	} else {
		log.Infof("load_file", "loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	envInt("PORT", &cfg.Port)
	envInt("MANAGEMENT_PORT", &cfg.ManagementPort)
	envString("BIND_ADDRESS", &cfg.BindAddress)
	envString("LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("ORACLE"); v != "" {
		cfg.Oracle = strings.ToLower(v)
	}
	envString("SIDECAR_URL", &cfg.SidecarURL)
	envString("OLLAMA_ENDPOINT", &cfg.OllamaEndpoint)
	envString("OLLAMA_MODEL", &cfg.OllamaModel)
	envString("AWS_REGION", &cfg.AWSRegion)
	envInt("ORACLE_TIMEOUT_SECS", &cfg.OracleTimeoutSecs)

	envString("CACHE_FILE", &cfg.CacheFile)
	if v := os.Getenv("CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CacheCapacity = n
		}
	}

	envString("MASK_STRATEGY", &cfg.MaskStrategy)
	envString("TERMS_FILE", &cfg.TermsFile)
	envString("KEYWORDS_FILE", &cfg.KeywordsFile)
	envList("CLINICAL_KEYWORDS", &cfg.ClinicalKeywords)
	envList("CITIES", &cfg.Cities)
	envBool("PROTECT_TERMS", &cfg.ProtectTerms)

	envString("MANAGEMENT_TOKEN", &cfg.ManagementToken)

	envString("TLS_CERT_FILE", &cfg.TLSCertFile)
	envString("TLS_KEY_FILE", &cfg.TLSKeyFile)
	envBool("USE_TLS", &cfg.UseTLS)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxUploadBytes = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt ignores values that are not positive integers.
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// envList splits a comma-separated value. A set but blank variable clears
// the list.
func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
