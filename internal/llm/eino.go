package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoChatter adapts an eino chat model to Chatter. The model name is fixed
// when the underlying client is built; Chat ignores its model argument.
type EinoChatter struct {
	cm model.ChatModel
}

// NewEinoChatter builds an OpenAI chat model through eino-ext.
func NewEinoChatter(ctx context.Context, apiKey, baseURL, modelName string) (*EinoChatter, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing openai chat model: %w", err)
	}
	return &EinoChatter{cm: cm}, nil
}

// WrapChatModel adapts an existing eino chat model.
func WrapChatModel(cm model.ChatModel) *EinoChatter {
	return &EinoChatter{cm: cm}
}

func (e *EinoChatter) Chat(ctx context.Context, _ string, messages []Message) (string, error) {
	msgs := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, &schema.Message{Role: toEinoRole(m.Role), Content: m.Content})
	}

	resp, err := e.cm.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate: empty response")
	}
	return resp.Content, nil
}

func toEinoRole(role string) schema.RoleType {
	switch role {
	case "system":
		return schema.System
	case "assistant":
		return schema.Assistant
	default:
		return schema.User
	}
}
