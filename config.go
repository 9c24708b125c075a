package fuelagent

import "time"

type ModelConfig struct {
	Provider       string        `env:"LLM_PROVIDER,default=gemini"`
	MaxTokens      int32         `env:"MAX_TOKENS,default=2048"`
	Temperature    float32       `env:"TEMPERATURE,default=0.1"`
	TopP           float32       `env:"TOP_P,default=0.9"`
	CallTimeout    time.Duration `env:"CALL_TIMEOUT,default=60s"`
	EmbeddingModel string        `env:"EMBEDDING_MODEL"`
	GeminiBaseURL  string        `env:"GEMINI_BASE_URL,default=https://generativelanguage.googleapis.com/v1beta"`
	OllamaEndpoint string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	AWSRegion      string        `env:"AWS_REGION,default=us-east-1"`
}

// RotationConfig lists are semicolon separated. Each credential names the
// environment variable holding its secret.
type RotationConfig struct {
	PlanPath     string   `env:"ROTATION_PLAN_PATH"`
	Credentials  []string `env:"CREDENTIALS,default=GOOGLE_API_KEY"`
	Models       []string `env:"MODELS,default=gemini-2.5-flash"`
	StateBackend string   `env:"ROTATION_STATE_BACKEND,default=sqlite"`
	StatePath    string   `env:"ROTATION_STATE_PATH,default=calorie_tracker.db"`
	StateBucket  string   `env:"ROTATION_STATE_S3_BUCKET"`
	StateKey     string   `env:"ROTATION_STATE_S3_KEY,default=rotation/state.json"`
}

type ReferenceConfig struct {
	Mode           string        `env:"REFERENCE_MODE,default=vector"`
	TopK           int           `env:"REFERENCE_TOP_K,default=10"`
	SQLitePath     string        `env:"REFERENCE_SQLITE_PATH,default=calorie_tracker.db"`
	SnapshotPath   string        `env:"REFERENCE_SNAPSHOT_PATH"`
	SnapshotBucket string        `env:"REFERENCE_SNAPSHOT_S3_BUCKET"`
	SnapshotKey    string        `env:"REFERENCE_SNAPSHOT_S3_KEY"`
	DetailsBaseURL string        `env:"DETAILS_BASE_URL"`
	DetailsTimeout time.Duration `env:"DETAILS_TIMEOUT,default=10s"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisTTL       time.Duration `env:"REDIS_TTL,default=24h"`
}

type PipelineConfig struct {
	ImageQuality int    `env:"IMAGE_JPEG_QUALITY,default=90"`
	ImageSpill   string `env:"IMAGE_SPILL_DIR"`
	AttemptLogs  string `env:"ATTEMPT_LOGS,default=stdout"`
}

type NotifyConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#fuel-alerts"`
}
