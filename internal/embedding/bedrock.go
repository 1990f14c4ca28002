package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/pkg/errs"
)

// BedrockProvider generates embeddings via AWS Bedrock (Titan
// embedding models), the same client family the rest of the codebase
// uses for Claude chat completions.
type BedrockProvider struct {
	client     *bedrockruntime.Client
	modelID    string
	dimensions int
}

// NewBedrockProvider builds a BedrockProvider for the given region and
// model. dimensions must match the model's output size and the vector
// column configured at schema time (spec.md §6).
func NewBedrockProvider(ctx context.Context, region, modelID string, dimensions int) (*BedrockProvider, error) {
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}
	if dimensions <= 0 {
		dimensions = 1024
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:     bedrockruntime.NewFromConfig(cfg),
		modelID:    modelID,
		dimensions: dimensions,
	}, nil
}

// Model implements Provider.
func (p *BedrockProvider) Model() string { return p.modelID }

// Dimensions implements Provider.
func (p *BedrockProvider) Dimensions() int { return p.dimensions }

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements Provider.
func (p *BedrockProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text, Dimensions: p.dimensions})
	if err != nil {
		return pgvector.Vector{}, errs.Permanent(fmt.Errorf("embedding: marshal request: %w", err))
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		// throttling, timeouts, transient 5xx from Bedrock: worth a retry
		// on the next embedding tick rather than a terminal failure.
		return pgvector.Vector{}, errs.Transient(fmt.Errorf("embedding: bedrock invoke failed: %w", err))
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return pgvector.Vector{}, errs.Permanent(fmt.Errorf("embedding: decode response: %w", err))
	}
	if len(resp.Embedding) == 0 {
		return pgvector.Vector{}, errs.Permanent(fmt.Errorf("embedding: empty vector returned by model %s", p.modelID))
	}

	return pgvector.NewVector(resp.Embedding), nil
}
