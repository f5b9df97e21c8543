// Package llm provides the OpenAI-compatible chat completion adapter.
// Clean Architecture: Adapter implementing ports.CompletionStreamer.
package llm

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// OpenAIAdapter implements ports.CompletionStreamer using streaming chat completions.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIAdapter creates a new chat completion adapter.
func NewOpenAIAdapter(client *openai.Client, model string, temperature float64) *OpenAIAdapter {
	if model == "" {
		model = openai.GPT4Turbo1106
	}
	return &OpenAIAdapter{
		client:      client,
		model:       model,
		temperature: float32(temperature),
	}
}

// Stream starts a completion with the assembled system prompt and the user's
// message. Cancelling ctx aborts the upstream request.
func (a *OpenAIAdapter) Stream(ctx context.Context, systemPrompt, userContent string) (ports.CompletionStream, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	}

	log.Debug().Str("component", "llm").Str("model", a.model).Int("prompt_bytes", len(systemPrompt)).Msg("starting completion stream")
	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errs.Upstream(err, "chat completion request failed")
	}
	return &completionStream{stream: stream}, nil
}

// completionStream yields the text deltas of a chat completion stream.
type completionStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty delta, or io.EOF when the model is done.
func (s *completionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", errs.Upstream(err, "chat completion stream failed")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *completionStream) Close() error {
	s.stream.Close()
	return nil
}
