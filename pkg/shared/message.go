// Package shared holds the message envelope exchanged between a console
// session and the transports that display it.
package shared

// MessageType tells the frontend how to handle a message.
type MessageType int

const (
	MessageTypeText        MessageType = 0  // console output line
	MessageTypeClear       MessageType = 1  // clear the screen
	MessageTypeMode        MessageType = 7  // mode change: "basic", "debug", "run"
	MessageTypeSession     MessageType = 8  // session id handed to the client
	MessageTypePrompt      MessageType = 12 // prompt symbol and input state
	MessageTypeInput       MessageType = 14 // INPUT wants a value
	MessageTypeError       MessageType = 32 // interpreter or command error
	MessageTypeListing     MessageType = 33 // program listing and syntax trees
	MessageTypeBreakpoint  MessageType = 34 // run suspended at a breakpoint
	MessageTypeBreakpoints MessageType = 35 // breakpoint list changed
	MessageTypeResult      MessageType = 36 // run finished
	MessageTypeQuit        MessageType = 37 // session ends
)

// Message is one frame sent to a client.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`

	// MessageTypeSession
	SessionID string `json:"sessionId,omitempty"`

	// MessageTypePrompt and MessageTypeInput
	InputEnabled *bool  `json:"inputEnabled,omitempty"`
	PromptSymbol string `json:"promptSymbol,omitempty"`
	Variable     string `json:"variable,omitempty"`

	// MessageTypeMode
	Mode string `json:"mode,omitempty"`

	// MessageTypeListing: Content holds the listing
	Trees string `json:"trees,omitempty"`

	// MessageTypeBreakpoint, MessageTypeResult and MessageTypeError
	Line int `json:"line,omitempty"`

	// MessageTypeBreakpoint: Content holds the variables
	// MessageTypeResult
	Success *bool `json:"success,omitempty"`
}

// ClientMessage is one frame received from a client.
type ClientMessage struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId,omitempty"`
}

// Bool returns a pointer for the optional boolean fields.
func Bool(b bool) *bool {
	return &b
}
