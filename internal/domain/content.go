package domain

// ContentKind tags the variant held by a Content value.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentTemplate ContentKind = "template"
	ContentMedia    ContentKind = "media"
)

// Template is a pre-approved provider message with positional body parameters.
type Template struct {
	Name       string   `json:"name"`
	Language   string   `json:"language"`
	Parameters []string `json:"parameters,omitempty"`
}

// Content is the payload of an outbound or inbound provider message. Exactly
// one of Text, Template or Media is meaningful, selected by Kind.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Template *Template   `json:"template,omitempty"`
	Media    *Media      `json:"media,omitempty"`
}

// TextContent builds a free-form text payload.
func TextContent(body string) Content {
	return Content{Kind: ContentText, Text: body}
}

// TemplateContent builds a template payload.
func TemplateContent(name, language string, params ...string) Content {
	return Content{Kind: ContentTemplate, Template: &Template{Name: name, Language: language, Parameters: params}}
}

// MediaContent builds a media payload.
func MediaContent(m Media) Content {
	return Content{Kind: ContentMedia, Media: &m}
}

// Summary returns the human-readable body of the content.
func (c Content) Summary() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentTemplate:
		if c.Template == nil {
			return ""
		}
		if n := len(c.Template.Parameters); n > 0 {
			return c.Template.Parameters[n-1]
		}
		return c.Template.Name
	case ContentMedia:
		if c.Media == nil {
			return ""
		}
		return c.Media.Caption
	default:
		return ""
	}
}
