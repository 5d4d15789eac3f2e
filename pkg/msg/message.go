package msg

import "encoding/json"

type WsMessage struct {
	EventCode EventCode       `json:"eventCode"`
	EventData json.RawMessage `json:"eventData"`
}

// New marshals event into a message of code.
func New(code EventCode, event interface{}) (*WsMessage, error) {
	rawEvent, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &WsMessage{
		EventCode: code,
		EventData: rawEvent,
	}, nil
}
