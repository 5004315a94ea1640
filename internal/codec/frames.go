package codec

import (
	"github.com/tidwall/gjson"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/wire"
)

// ParseTextFrame decodes one frame of an incremental text stream. An error
// payload on the stream is a terminal remote error.
func ParseTextFrame(frame wire.Frame) ([]model.Event, error) {
	if ce := remoteFrame(frame); ce != nil {
		return nil, ce
	}
	return model.DecodeStreamChunk(frame.Payload)
}

// ParseRealtimeFrame decodes one realtime server event. Error events are
// terminal remote errors.
func ParseRealtimeFrame(frame wire.Frame) ([]model.Event, error) {
	if ce := remoteFrame(frame); ce != nil {
		return nil, ce
	}
	ev, err := model.DecodeRealtimeEvent(frame.Payload)
	if err != nil {
		return nil, err
	}
	return []model.Event{ev}, nil
}

// remoteFrame returns a remote error when the frame reports one, either as an
// error payload or through an "error" event label. A labeled event block is
// remote only when it is the error event itself; other events may carry an
// "error" field as ordinary data.
func remoteFrame(frame wire.Frame) *domain.ClientError {
	if frame.Kind == wire.FrameEventBlock && !isErrorEvent(frame) {
		return nil
	}
	payload, ok := model.ParseErrorPayload(frame.Payload)
	if !ok {
		if frame.Label != model.EventError {
			return nil
		}
		payload = &model.RealtimeError{Type: model.EventError, Message: string(frame.Payload)}
	}
	ce := domain.NewRemoteError(ToRemoteError(payload, 0))
	ce.Raw = frame.Payload
	return ce
}

func isErrorEvent(frame wire.Frame) bool {
	return frame.Label == model.EventError || gjson.GetBytes(frame.Payload, "type").String() == model.EventError
}
