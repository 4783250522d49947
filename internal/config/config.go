package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-identity/internal/facematch"
)

//go:embed matching.yaml
var matchingYAML []byte

type Config struct {
	Database DatabaseConfig
	Detector DetectorConfig
	Matching MatchingConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the identity HNSW index (optional, rebuilt on startup when empty)
}

type DetectorConfig struct {
	URL      string  // defaults to http://localhost:8000
	MinScore float64 // faces below this det_score are not accepted (default 0.5)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // browser origins allowed by CORS besides localhost
}

// MatchingConfig holds the decision policy knobs.
type MatchingConfig struct {
	MatchThreshold           float64 `yaml:"match_threshold"`
	MinMargin                float64 `yaml:"min_margin"`
	SingleReferenceThreshold float64 `yaml:"single_reference_threshold"`
	SingleReferenceMargin    float64 `yaml:"single_reference_margin"`
	DuplicateSimilarity      float64 `yaml:"duplicate_similarity"`
	TopN                     int     `yaml:"top_n"`
	// HNSWMinIdentities is the identity count from which the approximate
	// index replaces the linear scan.
	HNSWMinIdentities int `yaml:"hnsw_min_identities"`
}

// Thresholds converts the matching config into policy thresholds.
func (m MatchingConfig) Thresholds() facematch.Thresholds {
	return facematch.Thresholds{
		MatchThreshold:           m.MatchThreshold,
		MinMargin:                m.MinMargin,
		SingleReferenceThreshold: m.SingleReferenceThreshold,
		SingleReferenceMargin:    m.SingleReferenceMargin,
		DuplicateSimilarity:      m.DuplicateSimilarity,
		TopN:                     m.TopN,
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// parseMatching decodes YAML on top of base, leaving unset keys untouched.
func parseMatching(data []byte, base MatchingConfig) (MatchingConfig, error) {
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, err
	}
	return base, nil
}

func loadMatching() MatchingConfig {
	m, err := parseMatching(matchingYAML, MatchingConfig{})
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded matching.yaml: " + err.Error())
	}

	if path := os.Getenv("MATCHING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Warning: could not read MATCHING_CONFIG %s: %v\n", path, err)
		} else if override, err := parseMatching(data, m); err != nil {
			fmt.Printf("Warning: could not parse MATCHING_CONFIG %s: %v\n", path, err)
		} else {
			m = override
		}
	}

	m.MatchThreshold = envFloat("MATCH_THRESHOLD", m.MatchThreshold)
	m.MinMargin = envFloat("MIN_MARGIN", m.MinMargin)
	m.SingleReferenceThreshold = envFloat("SINGLE_REFERENCE_THRESHOLD", m.SingleReferenceThreshold)
	m.SingleReferenceMargin = envFloat("SINGLE_REFERENCE_MARGIN", m.SingleReferenceMargin)
	m.DuplicateSimilarity = envFloat("DUPLICATE_SIMILARITY_THRESHOLD", m.DuplicateSimilarity)
	m.TopN = envInt("MATCH_TOP_N", m.TopN)
	m.HNSWMinIdentities = envInt("HNSW_MIN_IDENTITIES", m.HNSWMinIdentities)
	return m
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Detector: DetectorConfig{
			URL:      envString("EMBEDDING_URL", "http://localhost:8000"),
			MinScore: envFloat("DETECTOR_MIN_SCORE", 0.5),
		},
		Matching: loadMatching(),
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Validate checks the loaded matching policy.
func (c *Config) Validate() error {
	if err := c.Matching.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	return nil
}
