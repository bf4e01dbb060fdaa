package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIExtractor asks an OpenAI-compatible chat endpoint to pull candidate
// facts out of a statement. The model's output is parsed, never trusted:
// the caller re-validates every candidate.
type OpenAIExtractor struct {
	config  Config
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIExtractor(config Config) *OpenAIExtractor {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := config.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIExtractor{
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		apiKey:  config.APIKey,
		model:   model,
	}
}

const extractionSystemPrompt = `You extract personal facts from a statement.
Return ONLY a JSON array, no prose. Each element:
{"key": "snake_case_category", "value": "the fact", "confidence": 0.0-1.0, "is_factual": true|false, "supersedes": true|false}

Rules:
- One element per independent fact; an empty array when nothing is stated as fact.
- Questions, opinions and small talk get is_factual=false.
- "supersedes" is true only when the statement corrects a key listed under "existing keys".
- Examples:
  "I work as a software engineer at Google" -> [{"key":"job_title","value":"software engineer",...},{"key":"employer","value":"Google",...}]
  "My favorite color is blue" -> [{"key":"favorite_color","value":"blue",...}]`

func (e *OpenAIExtractor) Extract(ctx context.Context, statement string, existingKeys []string) ([]Candidate, error) {
	if strings.TrimSpace(statement) == "" {
		return nil, nil
	}

	user := fmt.Sprintf("existing keys: %s\nstatement: %q", strings.Join(existingKeys, ", "), statement)
	req := chatCompletionsRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: user},
		},
	}

	resp, err := e.makeRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	return parseCandidates(resp.Choices[0].Message.Content)
}

func (e *OpenAIExtractor) makeRequest(ctx context.Context, req chatCompletionsRequest) (*chatCompletionsResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var out chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// parseCandidates tolerates markdown code fences around the JSON array,
// which chat models add despite instructions.
func parseCandidates(content string) ([]Candidate, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var candidates []Candidate
	if err := json.Unmarshal([]byte(s), &candidates); err != nil {
		return nil, fmt.Errorf("unparseable extraction output: %w", err)
	}
	return candidates, nil
}

func (e *OpenAIExtractor) Provider() string {
	return "openai"
}
