package llm

import (
	"context"

	"github.com/sweetpotato0/deliberate/message"
)

// Client is the completion-service contract every deliberation stage talks
// through. Implementations live under contrib/completion.
type Client interface {
	// Generate produces a single assistant message for the conversation.
	Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error)
}

// Complete is a convenience for the common system+user prompt shape.
func Complete(ctx context.Context, c Client, system, user string) (string, error) {
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewMessage(message.RoleUser, user),
	}
	resp, err := c.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
