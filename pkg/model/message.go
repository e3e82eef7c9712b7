package model

// ChatID identifies a chat on the transport.
type ChatID int64

// OperatorID identifies the human operator behind a message.
type OperatorID int64

// MessageKind distinguishes the input shapes the transport can deliver.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindAudio   MessageKind = "audio"
	KindCommand MessageKind = "command"
	KindChoice  MessageKind = "choice"
)

// Inbound is a single message from the chat transport, normalized across
// text, voice notes, commands and button selections.
type Inbound struct {
	ChatID     ChatID
	OperatorID OperatorID
	Kind       MessageKind

	// Text carries message text for KindText, and the command name
	// (without slash) for KindCommand.
	Text string

	// Audio and MIME are set for KindAudio only.
	Audio []byte
	MIME  string

	// Choice carries the opaque value of a pressed button for KindChoice.
	Choice string
}

// Choice is one option of an interactive prompt. Value is opaque to the
// transport and returned verbatim when the operator selects the option.
type Choice struct {
	Label string
	Value string
}
