package embedding

import "time"

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty" env:"DIMENSIONS"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// DefaultOpenAIConfig returns the defaults used for memory embeddings.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "text-embedding-3-small",
		Timeout: 30 * time.Second,
	}
}
