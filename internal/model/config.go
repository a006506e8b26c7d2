package model

import "time"

// Config holds every tunable the pipeline exposes. Values are resolved in
// order: CLI flags > CASETRACE_* env vars > config file > DefaultConfig.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Cluster     ClusterConfig     `yaml:"cluster" mapstructure:"cluster"`
	Verify      VerifyConfig      `yaml:"verify" mapstructure:"verify"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
}

// HTTPConfig applies to every outbound client (authority, search, fetch)
type HTTPConfig struct {
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// CacheConfig controls the layered verification cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"` // disk layer location; empty disables disk
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ClusterConfig holds the clustering windows. Both are rune distances
// between span edges.
type ClusterConfig struct {
	// AdjacencyGap is the widest gap of punctuation/connective text that
	// still joins two citations as a parallel list.
	AdjacencyGap int `yaml:"adjacency_gap" mapstructure:"adjacency_gap"`
	// NameJoinWindow bounds how far apart two citations with the same
	// extracted name may sit and still merge. Beyond it, identical names
	// are treated as unrelated mentions.
	NameJoinWindow int `yaml:"name_join_window" mapstructure:"name_join_window"`
}

// VerifyConfig tunes the multi-source verifier
type VerifyConfig struct {
	AuthorityBaseURL string `yaml:"authority_base_url" mapstructure:"authority_base_url"`
	AuthorityToken   string `yaml:"authority_token" mapstructure:"authority_token"`

	// MinSimilarity is the floor a candidate's name similarity must clear
	// before a match is accepted, for both authority disambiguation and
	// web fallback. Tuning parameter, not an invariant.
	MinSimilarity float64 `yaml:"min_similarity" mapstructure:"min_similarity"`

	// DomainWeights scores fallback result URLs by host reliability.
	// Hosts absent from the map score GenericWeight.
	DomainWeights map[string]float64 `yaml:"domain_weights" mapstructure:"domain_weights"`
	GenericWeight float64            `yaml:"generic_weight" mapstructure:"generic_weight"`

	// SearchEngines is the fallback priority order.
	SearchEngines []string `yaml:"search_engines" mapstructure:"search_engines"`

	RatePerSecond  float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"` // kept below the authority's published ceiling
	Burst          int           `yaml:"burst" mapstructure:"burst"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"` // citations per authority request
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// CitationBudget caps the total verification time spent on one
	// cluster, across all sources.
	CitationBudget time.Duration `yaml:"citation_budget" mapstructure:"citation_budget"`
	CacheTTL       time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// PipelineConfig controls sync/deferred routing and the document deadline
type PipelineConfig struct {
	SyncMaxBytes     int64         `yaml:"sync_max_bytes" mapstructure:"sync_max_bytes"`
	SyncMaxCitations int           `yaml:"sync_max_citations" mapstructure:"sync_max_citations"`
	DocumentDeadline time.Duration `yaml:"document_deadline" mapstructure:"document_deadline"`
}

// ConcurrencyConfig bounds the only concurrent stage (verification) and
// batch document processing
type ConcurrencyConfig struct {
	VerifyWorkers  int `yaml:"verify_workers" mapstructure:"verify_workers"`
	BatchDocuments int `yaml:"batch_documents" mapstructure:"batch_documents"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LLMConfig configures the optional report summarizer
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent:    "casetrace/0.3 (+https://github.com/casetrace/casetrace)",
			Timeout:      10 * time.Second,
			MaxBodyBytes: 2_000_000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Cluster: ClusterConfig{
			AdjacencyGap:   64,
			NameJoinWindow: 1000,
		},
		Verify: VerifyConfig{
			AuthorityBaseURL: "https://www.courtlistener.com/api/rest/v4",
			MinSimilarity:    0.62,
			DomainWeights: map[string]float64{
				"courtlistener.com":   1.0,
				"casetext.com":        0.9,
				"justia.com":          0.85,
				"law.cornell.edu":     0.85,
				"caselaw.findlaw.com": 0.7,
				"findlaw.com":         0.7,
				"leagle.com":          0.6,
			},
			GenericWeight:  0.3,
			SearchEngines:  []string{"duckduckgo", "bing"},
			RatePerSecond:  1.5,
			Burst:          3,
			MaxRetries:     3,
			BatchSize:      25,
			RequestTimeout: 10 * time.Second,
			CitationBudget: 45 * time.Second,
			CacheTTL:       24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			SyncMaxBytes:     256 * 1024,
			SyncMaxCitations: 50,
			DocumentDeadline: 5 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			VerifyWorkers:  4,
			BatchDocuments: 4,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
