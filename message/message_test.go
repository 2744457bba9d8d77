package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
}

func TestText(t *testing.T) {
	msg := NewMessage(RoleAssistant, "content")
	if msg.Text() != "content" {
		t.Errorf("Expected 'content', got '%s'", msg.Text())
	}

	var nilMsg *Message
	if nilMsg.Text() != "" {
		t.Error("Expected empty text for nil message")
	}
}

func TestClone(t *testing.T) {
	msg := NewMessage(RoleSystem, "original")
	msg.Metadata["key"] = "value"

	cloned := Clone(msg)
	if cloned == msg {
		t.Error("Clone must return a new message")
	}
	if cloned.Content != msg.Content {
		t.Errorf("Expected content %q, got %q", msg.Content, cloned.Content)
	}

	cloned.Metadata["key"] = "changed"
	if msg.Metadata["key"] != "value" {
		t.Error("Clone must deep-copy metadata")
	}

	if Clone(nil) != nil {
		t.Error("Cloning nil yields nil")
	}
}
