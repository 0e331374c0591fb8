package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to the OpenAI chat completions API or any endpoint
// compatible with it.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return &openAIStream{stream: stream}, nil
}

func (p *OpenAIProvider) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:            req.Profile.Model,
		Messages:         messages,
		Temperature:      req.Profile.Temperature,
		MaxTokens:        req.Profile.MaxTokens,
		TopP:             req.Profile.TopP,
		PresencePenalty:  req.Profile.PresencePenalty,
		FrequencyPenalty: req.Profile.FrequencyPenalty,
		Stream:           req.Stream,
	}
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		// io.EOF passes through unchanged so the gateway sees end of stream.
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
			return "", classifyOpenAIError(err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() {
	s.stream.Close()
}

// classifyOpenAIError wraps API errors that carry an HTTP status in a
// *RemoteError. Transport errors are left for the generic classifier.
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}
	if kind, ok := kindForStatus(status); ok {
		return &RemoteError{Kind: kind, Attempts: 1, Err: err}
	}
	if status >= 500 {
		return &RemoteError{Kind: KindConnectionFailed, Attempts: 1, Err: err}
	}
	return fmt.Errorf("openai request failed with status %d: %w", status, err)
}
