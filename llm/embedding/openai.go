package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIProvider implements embedding using an OpenAI-compatible API.
type OpenAIProvider struct {
	*BaseProvider
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "openai-embedding",
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   2048,
			Timeout:    cfg.Timeout,
		}),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedding")),
	}
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedBatch generates embeddings for the given inputs.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, req *Request) (*Response, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrEmbeddingUnconfigured, "embedding API key not configured").
			WithHTTPStatus(http.StatusServiceUnavailable)
	}
	if len(req.Input) > p.MaxBatchSize() {
		return nil, types.NewBadRequestError(types.ErrInvalidRequest,
			fmt.Sprintf("batch of %d exceeds limit %d", len(req.Input), p.MaxBatchSize()))
	}

	dims := req.Dimensions
	if dims == 0 {
		dims = p.cfg.Dimensions
	}
	body := openAIEmbedRequest{
		Input:      req.Input,
		Model:      ChooseModel(req.Model, p.cfg.Model, defaultOpenAIModel),
		Dimensions: dims,
	}

	respBody, err := p.DoRequest(ctx, http.MethodPost, "/v1/embeddings", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		p.logger.Error("embedding request failed", zap.Int("inputs", len(req.Input)), zap.Error(err))
		return nil, err
	}

	var oaResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &oaResp); err != nil {
		return nil, types.NewError(types.ErrEmbeddingFailed, "decode embedding response").WithCause(err)
	}

	embeddings := make([]Data, len(oaResp.Data))
	for i, d := range oaResp.Data {
		embeddings[i] = Data{Index: d.Index, Embedding: d.Embedding}
	}

	return &Response{
		Provider:   p.Name(),
		Model:      oaResp.Model,
		Embeddings: embeddings,
		Usage: Usage{
			PromptTokens: oaResp.Usage.PromptTokens,
			TotalTokens:  oaResp.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// Embed embeds a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.EmbedBatch(ctx, &Request{Input: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, types.NewError(types.ErrEmbeddingFailed, "no embeddings returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
