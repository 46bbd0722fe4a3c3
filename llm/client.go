// Client - simple prompt-level wrapper around providers.

package llm

import "context"

// Client wraps a Provider with a prompt-oriented interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Generate sends a single user prompt and returns the raw text response.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	messages := []Message{{Role: RoleUser, Content: prompt}}
	response, err := c.provider.Complete(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// Complete sends a full conversation and returns the response with usage.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (Response, error) {
	return c.provider.Complete(ctx, messages, opts)
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
