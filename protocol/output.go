package protocol

// NewUserTextMessage constructs the stdin record for a plain text prompt.
func NewUserTextMessage(sessionID, text string) UserMessageToSend {
	return UserMessageToSend{
		Type:      "user",
		SessionID: sessionID,
		Message: UserMessageToSendInner{
			Role:    "user",
			Content: text,
		},
	}
}

// OutboundContent is one item of the array form of a user message.
type OutboundContent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewToolResultMessage constructs a user record carrying a tool_result for a
// tool the host executed itself.
func NewToolResultMessage(sessionID, toolUseID, content string, isError bool) UserMessageToSend {
	return UserMessageToSend{
		Type:      "user",
		SessionID: sessionID,
		Message: UserMessageToSendInner{
			Role: "user",
			Content: []OutboundContent{{
				Type:      string(ContentBlockTypeToolResult),
				ToolUseID: toolUseID,
				Content:   content,
				IsError:   isError,
			}},
		},
	}
}

// NewInterrupt constructs a control_request that interrupts the current turn.
func NewInterrupt(requestID string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      string(MessageTypeControlRequest),
		RequestID: requestID,
		Request:   InterruptRequestToSend{Subtype: ControlSubtypeInterrupt},
	}
}
