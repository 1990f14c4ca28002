package decision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BoundaryJudgeOutput is the structured response the boundary LLM call
// is forced to produce (spec.md §4.6, §6).
type BoundaryJudgeOutput struct {
	Promote    bool    `json:"promote"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// PushWorthinessOutput is the structured response the push-worthiness
// LLM call is forced to produce (spec.md §4.6, §6).
type PushWorthinessOutput struct {
	Push    bool     `json:"push"`
	Reasons []string `json:"reasons"`
}

// Judge is the LLM surface the decision pipeline calls for the
// BoundaryJudge and PushWorthiness nodes. Implementations must enforce
// a deadline of ~20s (spec.md §5).
type Judge interface {
	JudgeBoundary(ctx context.Context, prompt string) (BoundaryJudgeOutput, error)
	JudgePushWorthiness(ctx context.Context, prompt string) (PushWorthinessOutput, error)
}

// BedrockJudge calls AWS Bedrock's Claude models with a JSON-only
// system prompt, mirroring the teacher's Converse-style InvokeModel
// usage but for structured decision prompts instead of free chat.
type BedrockJudge struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockJudge builds a BedrockJudge for the given region and model.
func NewBedrockJudge(ctx context.Context, region, modelID string) (*BedrockJudge, error) {
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("decision: failed to load AWS config: %w", err)
	}
	return &BedrockJudge{client: bedrockruntime.NewFromConfig(cfg), modelID: modelID}, nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const jsonOnlySystemPrompt = "Respond with JSON only, matching the requested schema exactly. No prose, no markdown fences."

func (j *BedrockJudge) invoke(ctx context.Context, prompt string, out interface{}) error {
	req := claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        512,
		System:           jsonOnlySystemPrompt,
		Messages:         []claudeMessage{{Role: "user", Content: prompt}},
		Temperature:      0,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("decision: marshal request: %w", err)
	}

	resp, err := j.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(j.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("decision: bedrock invoke failed: %w", err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return fmt.Errorf("decision: decode response envelope: %w", err)
	}
	if len(parsed.Content) == 0 {
		return fmt.Errorf("decision: empty response from model %s", j.modelID)
	}
	if err := json.Unmarshal([]byte(parsed.Content[0].Text), out); err != nil {
		return fmt.Errorf("decision: decode structured output: %w", err)
	}
	return nil
}

// JudgeBoundary implements Judge.
func (j *BedrockJudge) JudgeBoundary(ctx context.Context, prompt string) (BoundaryJudgeOutput, error) {
	var out BoundaryJudgeOutput
	err := j.invoke(ctx, prompt, &out)
	return out, err
}

// JudgePushWorthiness implements Judge.
func (j *BedrockJudge) JudgePushWorthiness(ctx context.Context, prompt string) (PushWorthinessOutput, error) {
	var out PushWorthinessOutput
	err := j.invoke(ctx, prompt, &out)
	return out, err
}
