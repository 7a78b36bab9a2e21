package vecrag

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	embedder Embedder
	chat     ChatModel

	dimensions int
	indexName  string
	keyPrefix  string

	scoringMode     string
	maxIterations   int
	topK            int
	partitions      int
	partitionFanout bool
	hyde            bool
	tracing         bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		dimensions:    defaultDimensions,
		indexName:     defaultIndexName,
		keyPrefix:     defaultKeyPrefix,
		scoringMode:   "auto",
		maxIterations: 3,
		topK:          8,
		partitions:    16,
		tracing:       true,
	}
}

// WithRedis configures the client to connect to a Redis 8+ instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets the text embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithChat sets the completion model used for answers, rewrites and judging.
func WithChat(m ChatModel) Option {
	return optionFunc(func(c *clientConfig) {
		c.chat = m
	})
}

// WithVectorDimensions sets the embedding dimension of the corpus index.
// Defaults to 1536.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithIndex sets the FT index name and the key prefix of corpus documents.
func WithIndex(name, keyPrefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexName = name
		c.keyPrefix = keyPrefix
	})
}

// WithScoringMode selects the reranker: keyword, dedicated, llm-judge or auto.
func WithScoringMode(mode string) Option {
	return optionFunc(func(c *clientConfig) {
		c.scoringMode = mode
	})
}

// WithMaxIterations bounds rewrite and fallback cycles. Default: 3.
func WithMaxIterations(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxIterations = n
	})
}

// WithTopK sets how many documents are retrieved per pass. Default: 8.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithPartitions sets the corpus partition count and whether retrieval fans
// out across every partition.
func WithPartitions(count int, fanout bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.partitions = count
		c.partitionFanout = fanout
	})
}

// WithHyDE enables hypothetical-document retrieval for conceptual questions.
func WithHyDE() Option {
	return optionFunc(func(c *clientConfig) {
		c.hyde = true
	})
}

// WithoutTracing disables reasoning trace retention.
func WithoutTracing() Option {
	return optionFunc(func(c *clientConfig) {
		c.tracing = false
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
