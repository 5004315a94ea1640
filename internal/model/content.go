package model

import (
	"encoding/base64"
	"encoding/json"

	"github.com/tjfontaine/aiwire/internal/domain"
)

// Content part discriminators.
const (
	ContentTypeText  = "text"
	ContentTypeAudio = "audio"
)

// ContentPart is a realtime content part: exactly one of TextPart or AudioPart.
type ContentPart interface {
	PartType() string
	isContentPart()
}

// TextPart is a text content part.
type TextPart struct {
	Text string
}

func (TextPart) PartType() string { return ContentTypeText }
func (TextPart) isContentPart()   {}

// MarshalJSON writes the part with its discriminator.
func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: ContentTypeText, Text: p.Text})
}

// AudioPart is an audio content part. Audio is base64 and may be absent, which
// is distinct from an empty string.
type AudioPart struct {
	Audio      *string
	Transcript string
}

func (AudioPart) PartType() string { return ContentTypeAudio }
func (AudioPart) isContentPart()   {}

// MarshalJSON writes the part with its discriminator, omitting unset audio.
func (p AudioPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string  `json:"type"`
		Audio      *string `json:"audio,omitempty"`
		Transcript string  `json:"transcript"`
	}{Type: ContentTypeAudio, Audio: p.Audio, Transcript: p.Transcript})
}

// Bytes decodes the base64 audio. It returns nil when audio is unset.
func (p AudioPart) Bytes() ([]byte, error) {
	if p.Audio == nil {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(*p.Audio)
}

// ContentParts is the registry for realtime content parts, keyed by "type".
var ContentParts = NewRegistry("type", map[string]VariantDecoder[ContentPart]{
	ContentTypeText:  decodeTextPart,
	ContentTypeAudio: decodeAudioPart,
})

// DecodeContentPart decodes a single content part.
func DecodeContentPart(raw []byte) (ContentPart, error) {
	return ContentParts.Decode(raw)
}

func decodeTextPart(raw []byte) (ContentPart, error) {
	if foreign := present(raw, "audio", "transcript"); len(foreign) > 0 {
		return nil, domain.NewAmbiguousError(raw, append([]string{"text"}, foreign...)...)
	}
	var wire struct {
		Text string `json:"text"`
	}
	if err := decodeInto(raw, &wire); err != nil {
		return nil, err
	}
	return TextPart{Text: wire.Text}, nil
}

func decodeAudioPart(raw []byte) (ContentPart, error) {
	if foreign := present(raw, "text"); len(foreign) > 0 {
		return nil, domain.NewAmbiguousError(raw, "audio", "text")
	}
	var wire struct {
		Audio      *string `json:"audio"`
		Transcript string  `json:"transcript"`
	}
	if err := decodeInto(raw, &wire); err != nil {
		return nil, err
	}
	return AudioPart{Audio: wire.Audio, Transcript: wire.Transcript}, nil
}
