package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Memory       MemoryConfig       `json:"memory"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Agents       []AgentConfig      `json:"agents"`
	Database     DatabaseConfig     `json:"database"`
}

type ServerConfig struct {
	Port          int    `json:"port"`
	LogLevel      string `json:"log_level"`
	MigrationsDir string `json:"migrations_dir"`
}

// MemoryConfig mirrors memory.Config. Zero values keep the memory defaults.
type MemoryConfig struct {
	MaxShortTermItems      int      `json:"max_short_term_items"`
	ConsolidationThreshold int      `json:"consolidation_threshold"`
	MaxResults             int      `json:"max_results"`
	PromotePriority        int      `json:"promote_priority"`
	PromoteMessages        int      `json:"promote_messages"`
	LearningWindow         Duration `json:"learning_window"`
	LinkSimilarity         float64  `json:"link_similarity"`
	MergeSimilarity        float64  `json:"merge_similarity"`
	PatternDecayAge        Duration `json:"pattern_decay_age"`
	NodeDecayAge           Duration `json:"node_decay_age"`
	DecayFactor            float64  `json:"decay_factor"`
	PatternFloor           float64  `json:"pattern_floor"`
	CompressGroupMin       int      `json:"compress_group_min"`
	RecencyHalfLife        Duration `json:"recency_half_life"`
}

type OrchestratorConfig struct {
	ConsolidationSchedule string   `json:"consolidation_schedule"`
	CompressionSchedule   string   `json:"compression_schedule"`
	PoolSize              int      `json:"pool_size"`
	SinkTimeout           Duration `json:"sink_timeout"`
	ShareMinConfidence    float64  `json:"share_min_confidence"`
}

type AgentConfig struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// Duration decodes Go duration strings such as "5m" or "720h".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config JSON after env substitution.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.MigrationsDir == "" {
		c.Server.MigrationsDir = "migrations"
	}
	if c.Orchestrator.ShareMinConfidence <= 0 {
		c.Orchestrator.ShareMinConfidence = orchestrator.DefaultShareMinConfidence
	}
	if len(c.Agents) == 0 {
		c.Agents = []AgentConfig{
			{ID: "lead-triage", Kind: "lead_triage"},
			{ID: "engagement", Kind: "engagement"},
			{ID: "campaign-optimizer", Kind: "campaign_optimization"},
		}
	}
}

// MemoryOptions converts the memory section. Unset fields keep the defaults
// of memory.DefaultConfig.
func (c *Config) MemoryOptions() memory.Config {
	m := c.Memory
	out := memory.DefaultConfig()
	setInt(&out.MaxShortTermItems, m.MaxShortTermItems)
	setInt(&out.ConsolidationThreshold, m.ConsolidationThreshold)
	setInt(&out.MaxResults, m.MaxResults)
	setInt(&out.PromotePriority, m.PromotePriority)
	setInt(&out.PromoteMessages, m.PromoteMessages)
	setInt(&out.CompressGroupMin, m.CompressGroupMin)
	setFloat(&out.LinkSimilarity, m.LinkSimilarity)
	setFloat(&out.MergeSimilarity, m.MergeSimilarity)
	setFloat(&out.DecayFactor, m.DecayFactor)
	setFloat(&out.PatternFloor, m.PatternFloor)
	setDuration(&out.LearningWindow, m.LearningWindow)
	setDuration(&out.PatternDecayAge, m.PatternDecayAge)
	setDuration(&out.NodeDecayAge, m.NodeDecayAge)
	setDuration(&out.RecencyHalfLife, m.RecencyHalfLife)
	return out
}

// SchedulerOptions converts the orchestrator section. An empty compression
// schedule means the default; "off" disables scheduled compression.
func (c *Config) SchedulerOptions() orchestrator.SchedulerOpts {
	o := c.Orchestrator
	compression := o.CompressionSchedule
	switch compression {
	case "":
		compression = orchestrator.DefaultSchedulerOpts().CompressionSchedule
	case "off":
		compression = ""
	}
	return orchestrator.SchedulerOpts{
		ConsolidationSchedule: o.ConsolidationSchedule,
		CompressionSchedule:   compression,
		PoolSize:              o.PoolSize,
		SinkTimeout:           time.Duration(o.SinkTimeout),
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v > 0 {
		*dst = time.Duration(v)
	}
}
