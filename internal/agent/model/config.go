package model

// ================ Config ================

type RouterConfig struct {
	Model          string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens      int     `envconfig:"ROUTER_MAX_TOKENS" default:"512"`
	Temperature    float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
	SemanticHints  bool    `envconfig:"ROUTER_SEMANTIC_HINTS" default:"false"`
	HintsTopK      int     `envconfig:"ROUTER_HINTS_TOP_K" default:"3"`
	MaxMessageRune int     `envconfig:"ROUTER_MAX_MESSAGE_RUNES" default:"2000"`
}

type EmbeddingConfig struct {
	Model     string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	TaskType  string `envconfig:"EMBEDDING_TASK_TYPE" default:"RETRIEVAL_QUERY"`
	CacheSize int    `envconfig:"EMBEDDING_CACHE_SIZE" default:"512"`
}

type VectorConfig struct {
	Path string `envconfig:"VECTOR_STORE_PATH" default:"data/vector_index.db"`
	TopK int    `envconfig:"VECTOR_TOP_K" default:"5"`
}

type DataConfig struct {
	// Source is "csv" or "postgres".
	Source string `envconfig:"DATA_SOURCE" default:"csv"`
	CSVDir string `envconfig:"DATA_CSV_DIR" default:"data/csv"`
}

type TurnConfig struct {
	TTL      string `envconfig:"TURN_TTL" default:"30m"`
	MaxTurns int    `envconfig:"TURN_MAX_LOG" default:"50"`
}

type SuggestionConfig struct {
	MinResponseRunes int `envconfig:"SUGGESTIONS_MIN_RESPONSE_RUNES" default:"40"`
	Max              int `envconfig:"SUGGESTIONS_MAX" default:"3"`
}

type ServerConfig struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	NatsURL     string `envconfig:"NATS_URL"`
	NatsSubject string `envconfig:"NATS_SUBJECT" default:"chat.message"`
	NatsWorkers int    `envconfig:"NATS_WORKERS" default:"4"`
	TurnTimeout string `envconfig:"TURN_TIMEOUT" default:"60s"`
}
