package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"newco.ai/founder-scout/internal/store"
)

// GeminiProvider talks to the Gemini API. System messages become the model's
// system instruction and assistant turns use the "model" role.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	session, last, err := p.startChat(req)
	if err != nil {
		return "", err
	}

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	session, last, err := p.startChat(req)
	if err != nil {
		return nil, err
	}
	return &geminiStream{iter: session.SendMessageStream(ctx, last.Parts...)}, nil
}

// startChat splits the request into history and the final user turn, which
// Gemini expects to be sent separately.
func (p *GeminiProvider) startChat(req Request) (*genai.ChatSession, *genai.Content, error) {
	model := p.client.GenerativeModel(req.Profile.Model)
	configureModel(model, req.Profile)

	var (
		system  []string
		history []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case store.RoleSystem:
			system = append(system, m.Content)
		case store.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	if len(history) == 0 {
		return nil, nil, fmt.Errorf("prompt history is empty for chat completion")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, nil, fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	session := model.StartChat()
	session.History = history[:len(history)-1]
	return session, last, nil
}

// configureModel applies the profile's sampling settings. genai's
// GenerationConfig has no presence or frequency penalty, so those two
// profile fields are not sent to Gemini.
func configureModel(model *genai.GenerativeModel, profile Profile) {
	model.SetTemperature(profile.Temperature)
	model.SetTopP(profile.TopP)
	if profile.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(profile.MaxTokens))
	}
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Recv() (string, error) {
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return responseText(resp), nil
}

func (s *geminiStream) Close() {}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func classifyGeminiError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindForStatus(apiErr.HTTPCode()); ok {
			return &RemoteError{Kind: kind, Attempts: 1, Err: err}
		}
		if st := apiErr.GRPCStatus(); st != nil {
			if kind, ok := kindForCode(st.Code()); ok {
				return &RemoteError{Kind: kind, Attempts: 1, Err: err}
			}
		}
		return err
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if kind, ok := kindForStatus(gErr.Code); ok {
			return &RemoteError{Kind: kind, Attempts: 1, Err: err}
		}
	}
	return err
}

func kindForCode(code codes.Code) (ErrorKind, bool) {
	switch code {
	case codes.ResourceExhausted:
		return KindRateLimited, true
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuthFailed, true
	case codes.DeadlineExceeded:
		return KindTimeout, true
	case codes.Unavailable:
		return KindConnectionFailed, true
	}
	return KindOther, false
}
