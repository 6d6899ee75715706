package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const answerSystemPrompt = `You answer questions about the user's uploaded documents.
Use only the provided context. If the context does not contain the answer, say so.`

// OpenAIConfig configures the chat-completion summarizer.
type OpenAIConfig struct {
	APIKeyEnv string
	BaseURL   string
	Model     string
}

// OpenAISummarizer generates answers with a chat completion over the
// retrieved context.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, question string, contexts []string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Context:\n")
	for i, c := range contexts {
		fmt.Fprintf(&prompt, "[%d] %s\n", i+1, c)
	}
	prompt.WriteString("\nQuestion: ")
	prompt.WriteString(question)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
