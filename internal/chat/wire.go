package chat

import "encoding/json"

// Event names on the live channel. Inbound and outbound frames share one
// envelope shape: {"event": ..., "data": ...}.
const (
	eventNewMessage        = "newMessage"
	eventMessageViewed     = "messageViewed"
	eventMessageError      = "messageError"
	eventJoinCase          = "joinCase"
	eventSendMessage       = "sendMessage"
	eventMarkMessageViewed = "markMessageViewed"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type sendMessagePayload struct {
	Content          string `json:"content"`
	CaseID           string `json:"caseId"`
	ReceiverClientID string `json:"receiverClientId"`
}

// newEnvelope marshals data into an envelope for event. Payload types are
// all marshalable; a failure here is a programming error.
func newEnvelope(event string, data interface{}) envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		panic("chat: unmarshalable payload: " + err.Error())
	}
	return envelope{Event: event, Data: raw}
}
