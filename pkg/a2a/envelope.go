package a2a

// EnvelopeParams holds the correlation ids and text for one dispatch.
type EnvelopeParams struct {
	Text      string
	MessageID string
	TaskID    string
	ContextID string
}

// NewSendMessageRequest builds the message/send request for a single text part.
// The JSON-RPC id is the message id so replies can be matched in logs.
func NewSendMessageRequest(p EnvelopeParams) *SendMessageRequest {
	return &SendMessageRequest{
		JSONRPC: JSONRPCVersion,
		ID:      p.MessageID,
		Method:  MethodSendMessage,
		Params: MessageSendParams{
			Message: Message{
				Role:      RoleUser,
				Parts:     []Part{{Type: PartTypeText, Text: p.Text}},
				MessageID: p.MessageID,
				TaskID:    p.TaskID,
				ContextID: p.ContextID,
			},
		},
	}
}
