package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/hopqa/internal/util"
	"github.com/rotisserie/eris"
)

// CompatProvider talks to OpenAI-compatible chat endpoints (vLLM, DashScope
// compatible mode, LiteLLM). Unlike OpenAIProvider it can send video_url
// content parts, which vision models served this way accept.
type CompatProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type compatRequest struct {
	Model          string            `json:"model"`
	Messages       []compatMessage   `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *compatRespFormat `json:"response_format,omitempty"`
}

type compatRespFormat struct {
	Type string `json:"type"`
}

// compatMessage content is either a string or a list of compatPart
type compatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type compatPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	VideoURL *compatVideoURL `json:"video_url,omitempty"`
}

type compatVideoURL struct {
	URL string `json:"url"`
}

type compatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type compatError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewCompatProvider creates a provider for an OpenAI-compatible endpoint
func NewCompatProvider(config Config) (*CompatProvider, error) {
	if config.BaseURL == "" {
		return nil, eris.New("openai-compatible provider needs a base URL")
	}

	return &CompatProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
	}, nil
}

// Name returns the provider name
func (p *CompatProvider) Name() string {
	return "openai-compatible"
}

// Complete runs one chat/completions call, passing video parts through
func (p *CompatProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		return nil, eris.New("openai-compatible: model must be specified")
	}

	apiReq := compatRequest{
		Model:       req.Model,
		Messages:    make([]compatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &compatRespFormat{Type: "json_object"}
	}
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, toCompatMessage(m))
	}

	resp, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, eris.Wrap(err, "openai-compatible API error")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai-compatible: no choices in response")
	}

	return &CompletionResponse{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func toCompatMessage(m Message) compatMessage {
	if len(m.Parts) == 0 {
		return compatMessage{Role: m.Role, Content: m.Content}
	}
	parts := make([]compatPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case PartVideo:
			parts = append(parts, compatPart{Type: PartVideo, VideoURL: &compatVideoURL{URL: p.URL}})
		default:
			parts = append(parts, compatPart{Type: PartText, Text: p.Text})
		}
	}
	return compatMessage{Role: m.Role, Content: parts}
}

func (p *CompatProvider) makeRequest(ctx context.Context, apiReq compatRequest) (*compatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr compatError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, eris.Errorf("API error (%d): %s - %s", httpResp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, eris.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp compatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, eris.Wrap(err, "unmarshal response")
	}

	return &resp, nil
}
