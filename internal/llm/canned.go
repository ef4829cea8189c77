package llm

import (
	"context"
	"fmt"
	"strings"
)

// CannedProvider is the offline responder used when no API key is
// configured. Replies are deterministic so end-to-end tests can assert on
// them.
type CannedProvider struct{}

// NewCannedProvider creates the offline provider.
func NewCannedProvider() *CannedProvider {
	return &CannedProvider{}
}

// Name returns the provider name.
func (p *CannedProvider) Name() string {
	return "canned"
}

// Complete echoes the message back in a fixed template. When the system
// prompt enables image mode and the message asks for an image, the reply
// carries an image sentinel line so clients can exercise that path.
func (p *CannedProvider) Complete(_ context.Context, systemPrompt, message string) (string, error) {
	if strings.Contains(systemPrompt, "image mode") && strings.Contains(strings.ToLower(message), "image") {
		return fmt.Sprintf("Here is your picture!\nIMAGE_URL: https://placehold.co/512x512?text=%d", len(message)), nil
	}
	return fmt.Sprintf("You said: %q. I'm running in offline mode, but I'm still happy to chat!", message), nil
}
