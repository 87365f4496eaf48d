// Package whatsapp talks to the WhatsApp Cloud API: outbound sends, media
// lookups and decoding of inbound webhook deliveries.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/logging"
)

var _ domain.Messenger = (*Client)(nil)

// Client implements domain.Messenger against the Cloud API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	phoneNumberID string
	token         string
	log           *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a provider client from the provider config section.
func NewClient(cfg config.ProviderConfig, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout()},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.AccessToken,
		log:           log.Sub("whatsapp"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// messagesURL is {base}/{phoneNumberId}/messages. Without a phone number id
// the base URL is taken to be the full messages endpoint.
func (c *Client) messagesURL() string {
	if c.phoneNumberID == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + c.phoneNumberID + "/messages"
}

// mediaBaseURL strips a trailing /{phoneNumberId}/messages so media lookups
// hit {graph}/{mediaId} regardless of how the base URL was configured.
func (c *Client) mediaBaseURL() string {
	base := c.baseURL
	if c.phoneNumberID == "" && strings.HasSuffix(base, "/messages") {
		base = strings.TrimSuffix(base, "/messages")
		if i := strings.LastIndex(base, "/"); i > 0 {
			base = base[:i]
		}
	}
	return base
}

type textBody struct {
	PreviewURL bool   `json:"preview_url,omitempty"`
	Body       string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	ID       string `json:"id"`
}

// buildMessage converts domain content into the provider's request body.
func buildMessage(to string, content domain.Content) (outboundMessage, error) {
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}

	switch content.Kind {
	case domain.ContentText:
		if content.Text == "" {
			return msg, errors.New("empty text body")
		}
		msg.Type = "text"
		msg.Text = &textBody{Body: content.Text}

	case domain.ContentTemplate:
		if content.Template == nil || content.Template.Name == "" {
			return msg, errors.New("template name is required")
		}
		t := &templateBody{
			Name:     content.Template.Name,
			Language: templateLanguage{Code: content.Template.Language},
		}
		if len(content.Template.Parameters) > 0 {
			params := make([]templateParameter, 0, len(content.Template.Parameters))
			for _, p := range content.Template.Parameters {
				params = append(params, templateParameter{Type: "text", Text: p})
			}
			t.Components = []templateComponent{{Type: "body", Parameters: params}}
		}
		msg.Type = "template"
		msg.Template = t

	default:
		// media only flows inbound, from the owner
		return msg, errors.Errorf("unsupported outbound content kind %q", content.Kind)
	}
	return msg, nil
}

// Send delivers content to a recipient and returns the provider message id.
func (c *Client) Send(ctx context.Context, to string, content domain.Content) (string, error) {
	msg, err := buildMessage(to, content)
	if err != nil {
		return "", errors.Wrap(err, "building message")
	}

	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, c.messagesURL(), msg, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", errors.New("whatsapp: send response carried no message id")
	}

	id := resp.Messages[0].ID
	c.log.Debug().Str("type", msg.Type).Str("messageId", id).Msg("message sent")
	return id, nil
}

// MediaURL resolves a media id to its download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	if mediaID == "" {
		return "", errors.New("empty media id")
	}
	var resp mediaResponse
	if err := c.do(ctx, http.MethodGet, c.mediaBaseURL()+"/"+mediaID, nil, &resp); err != nil {
		return "", errors.WithMessage(err, "media lookup")
	}
	if resp.URL == "" {
		return "", errors.Errorf("whatsapp: media %s has no url", mediaID)
	}
	return resp.URL, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, "parsing response")
		}
	}
	return nil
}
