// Package model defines data structures shared by the chat client and the
// dev backend.
package model

import (
	"strings"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is a named file reference carried alongside a message.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
}

// Message is a single conversation message. Messages are immutable once
// constructed; a revealed or cancelled assistant reply is a new Message,
// never an edit of an earlier one.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// AskRequest is the request body for the completion endpoint.
type AskRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
}

// AskResponse is the completion endpoint response.
type AskResponse struct {
	Response string `json:"response"`
}

// ImageSentinel separates narrative text from a generated-image reference
// inside assistant message content. The core passes content through
// unmodified; splitting is a display concern.
const ImageSentinel = "IMAGE_URL: "

// SplitImageURL splits message content on the image sentinel. The returned
// url is empty when the content carries no image reference.
func SplitImageURL(content string) (text, url string) {
	idx := strings.Index(content, ImageSentinel)
	if idx < 0 {
		return content, ""
	}
	text = strings.TrimRight(content[:idx], " \n")
	url = strings.TrimSpace(content[idx+len(ImageSentinel):])
	return text, url
}
