package workflowai

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentType identifies the kind of a message part.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentDocumentURL ContentType = "document_url"
	ContentImageURL    ContentType = "image_url"
	ContentAudioURL    ContentType = "audio_url"
)

// Content is one part of a multi-part message.
type Content interface {
	Type() ContentType
}

// TextContent is a text part.
type TextContent struct {
	Text string
}

func (TextContent) Type() ContentType { return ContentText }

// DocumentContent is a document referenced by URL.
type DocumentContent struct {
	URL string
}

func (DocumentContent) Type() ContentType { return ContentDocumentURL }

// ImageContent is an image referenced by URL.
type ImageContent struct {
	URL string
}

func (ImageContent) Type() ContentType { return ContentImageURL }

// AudioContent is an audio file referenced by URL.
type AudioContent struct {
	URL string
}

func (AudioContent) Type() ContentType { return ContentAudioURL }

type urlRef struct {
	URL string `json:"url"`
}

type contentWire struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Source   *urlRef     `json:"source,omitempty"`
	ImageURL *urlRef     `json:"image_url,omitempty"`
	AudioURL *urlRef     `json:"audio_url,omitempty"`
}

func decodeContent(raw json.RawMessage) (Content, error) {
	var w contentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid message part: %w", err)
	}

	switch w.Type {
	case ContentText:
		return TextContent{Text: w.Text}, nil
	case ContentDocumentURL:
		if w.Source == nil {
			return nil, fmt.Errorf("document part without source")
		}
		return DocumentContent{URL: w.Source.URL}, nil
	case ContentImageURL:
		if w.ImageURL == nil {
			return nil, fmt.Errorf("image part without image_url")
		}
		return ImageContent{URL: w.ImageURL.URL}, nil
	case ContentAudioURL:
		if w.AudioURL == nil {
			return nil, fmt.Errorf("audio part without audio_url")
		}
		return AudioContent{URL: w.AudioURL.URL}, nil
	}
	return nil, fmt.Errorf("unsupported message part type %q", w.Type)
}

func encodeContent(c Content) contentWire {
	switch v := c.(type) {
	case TextContent:
		return contentWire{Type: ContentText, Text: v.Text}
	case DocumentContent:
		return contentWire{Type: ContentDocumentURL, Source: &urlRef{URL: v.URL}}
	case ImageContent:
		return contentWire{Type: ContentImageURL, ImageURL: &urlRef{URL: v.URL}}
	case AudioContent:
		return contentWire{Type: ContentAudioURL, AudioURL: &urlRef{URL: v.URL}}
	}
	return contentWire{Type: c.Type()}
}

// Message is one message exchanged with a model. Its content is exactly one of
// a string, a JSON object or a list of parts.
type Message struct {
	Role string

	Text   string
	Object map[string]any
	Parts  []Content
}

type messageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role}

	raw := bytes.TrimSpace(w.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &m.Text)
	case '{':
		return json.Unmarshal(raw, &m.Object)
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return err
		}
		m.Parts = make([]Content, 0, len(parts))
		for _, p := range parts {
			c, err := decodeContent(p)
			if err != nil {
				return err
			}
			m.Parts = append(m.Parts, c)
		}
		return nil
	}
	return fmt.Errorf("unsupported message content %s", raw)
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	switch {
	case m.Parts != nil:
		parts := make([]contentWire, len(m.Parts))
		for i, p := range m.Parts {
			parts[i] = encodeContent(p)
		}
		content = parts
	case m.Object != nil:
		content = m.Object
	default:
		content = m.Text
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}{m.Role, content})
}

// Usage reports the tokens and cost of one completion.
type Usage struct {
	CompletionTokenCount       *float64 `json:"completion_token_count,omitempty"`
	CompletionCostUSD          *float64 `json:"completion_cost_usd,omitempty"`
	ReasoningTokenCount        *float64 `json:"reasoning_token_count,omitempty"`
	PromptTokenCount           *float64 `json:"prompt_token_count,omitempty"`
	PromptTokenCountCached     *float64 `json:"prompt_token_count_cached,omitempty"`
	PromptCostUSD              *float64 `json:"prompt_cost_usd,omitempty"`
	PromptAudioTokenCount      *float64 `json:"prompt_audio_token_count,omitempty"`
	PromptAudioDurationSeconds *float64 `json:"prompt_audio_duration_seconds,omitempty"`
	PromptImageCount           *int     `json:"prompt_image_count,omitempty"`
	ModelContextWindowSize     *int     `json:"model_context_window_size,omitempty"`
}

// Completion is one LLM call made while executing a run.
type Completion struct {
	Messages []Message `json:"messages"`
	Response *string   `json:"response,omitempty"`
	Usage    Usage     `json:"usage"`
}
