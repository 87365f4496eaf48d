package domain

import "context"

// Messenger is the outbound side of the messaging provider.
type Messenger interface {
	// Send delivers content to the recipient and returns the provider message id.
	Send(ctx context.Context, to string, content Content) (string, error)

	// MediaURL resolves a provider media id to a downloadable URL.
	MediaURL(ctx context.Context, mediaID string) (string, error)
}
