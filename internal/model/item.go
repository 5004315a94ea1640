package model

import (
	"encoding/json"
)

// ConversationItem is an item in a realtime conversation. Content is a sequence:
// parts that do not decode are kept in Unrecognized instead of failing the item.
type ConversationItem struct {
	ID           string
	Object       string
	Type         string
	Status       string
	Role         string
	Content      []ContentPart
	Unrecognized []Unrecognized
	CallID       *string
	Name         *string
	Arguments    *string
	Output       *string
}

type conversationItemWire struct {
	ID        string          `json:"id,omitempty"`
	Object    string          `json:"object,omitempty"`
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	CallID    *string         `json:"call_id,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Arguments *string         `json:"arguments,omitempty"`
	Output    *string         `json:"output,omitempty"`
}

// UnmarshalJSON decodes the item and its content sequence.
func (it *ConversationItem) UnmarshalJSON(data []byte) error {
	var wire conversationItemWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var (
		parts   []ContentPart
		skipped []Unrecognized
	)
	if len(wire.Content) > 0 {
		var err error
		if parts, skipped, err = ContentParts.DecodeList(wire.Content); err != nil {
			return err
		}
	}

	*it = ConversationItem{
		ID:           wire.ID,
		Object:       wire.Object,
		Type:         wire.Type,
		Status:       wire.Status,
		Role:         wire.Role,
		Content:      parts,
		Unrecognized: skipped,
		CallID:       wire.CallID,
		Name:         wire.Name,
		Arguments:    wire.Arguments,
		Output:       wire.Output,
	}
	return nil
}

// MarshalJSON writes the item back, including any unrecognized parts in their
// original positions.
func (it ConversationItem) MarshalJSON() ([]byte, error) {
	wire := conversationItemWire{
		ID:        it.ID,
		Object:    it.Object,
		Type:      it.Type,
		Status:    it.Status,
		Role:      it.Role,
		CallID:    it.CallID,
		Name:      it.Name,
		Arguments: it.Arguments,
		Output:    it.Output,
	}

	total := len(it.Content) + len(it.Unrecognized)
	if total > 0 {
		elems := make([]json.RawMessage, 0, total)
		known, skipped := 0, 0
		for i := 0; i < total; i++ {
			if skipped < len(it.Unrecognized) && it.Unrecognized[skipped].Index == i {
				elems = append(elems, it.Unrecognized[skipped].Raw)
				skipped++
				continue
			}
			if known >= len(it.Content) {
				break
			}
			raw, err := json.Marshal(it.Content[known])
			if err != nil {
				return nil, err
			}
			elems = append(elems, raw)
			known++
		}
		content, err := json.Marshal(elems)
		if err != nil {
			return nil, err
		}
		wire.Content = content
	}
	return json.Marshal(wire)
}

// Session is a realtime session configuration.
type Session struct {
	ID                      string          `json:"id,omitempty"`
	Object                  string          `json:"object,omitempty"`
	Model                   string          `json:"model,omitempty"`
	Modalities              []string        `json:"modalities,omitempty"`
	Instructions            *string         `json:"instructions,omitempty"`
	Voice                   *string         `json:"voice,omitempty"`
	InputAudioFormat        *string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       *string         `json:"output_audio_format,omitempty"`
	Temperature             *float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens json.RawMessage `json:"max_response_output_tokens,omitempty"`
	TurnDetection           json.RawMessage `json:"turn_detection,omitempty"`
	ClientSecret            *ClientSecret   `json:"client_secret,omitempty"`
}

// ClientSecret is an ephemeral key minted for a realtime session.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// ObjectType implements Resource.
func (*Session) ObjectType() string { return ObjectRealtimeSession }
