package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame header: [type:1][pad:1][length:uint16 big-endian], then length
// payload bytes.
const headerLen = 4

const (
	// Version is the protocol version this server speaks in its Initial
	// and Representation exchange.
	Version uint16 = 1

	// MagicNumber closes the Initial payload. Seen byte-swapped it means
	// the peer encoded with the wrong endianness.
	MagicNumber uint16 = 0xDA10

	magicSwapped uint16 = 0x10DA
)

// MessageType discriminates the five frame kinds.
type MessageType byte

const (
	InitialMessage        MessageType = 0
	RepresentationMessage MessageType = 1
	DiplomacyMessage      MessageType = 2
	FinalMessage          MessageType = 3
	ErrorMessage          MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case InitialMessage:
		return "Initial"
	case RepresentationMessage:
		return "Representation"
	case DiplomacyMessage:
		return "Diplomacy"
	case FinalMessage:
		return "Final"
	case ErrorMessage:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}

var (
	ErrUnknownMessageType          = errors.New("frame type byte is not a known message type")
	ErrMessageShorterThanExpected  = errors.New("message payload is shorter than its type requires")
	ErrPayloadNotEmpty             = errors.New("message type requires an empty payload")
	ErrVersionIncompatibility      = errors.New("peer speaks an incompatible protocol version")
	ErrWrongMagicNumber            = errors.New("initial message carries the wrong magic number")
	ErrWrongEndian                 = errors.New("initial message magic number is byte-swapped")
	ErrNotFirstMessage             = errors.New("first message on the connection was not Initial")
	ErrMoreThanOneInitialMessage   = errors.New("peer sent a second Initial message")
	ErrUnexpectedRepresentation    = errors.New("peer sent a Representation message to the server")
)

// ErrorCode is the one-byte reason carried by an Error frame. Values
// follow the DAIDE client-server protocol numbering.
type ErrorCode byte

const (
	CodeTimeout               ErrorCode = 0x01
	CodeNotFirstMessage       ErrorCode = 0x02
	CodeMoreThanOneInitial    ErrorCode = 0x03
	CodeVersionIncompatible   ErrorCode = 0x04
	CodeUnexpectedRepresent   ErrorCode = 0x06
	CodeUnknownMessage        ErrorCode = 0x08
	CodeMessageShort          ErrorCode = 0x09
	CodeWrongMagicNumber      ErrorCode = 0x0A
	CodeWrongEndian           ErrorCode = 0x0B
)

// CodeFor maps a fatal protocol error to the code sent in the closing
// Error frame.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFirstMessage):
		return CodeNotFirstMessage
	case errors.Is(err, ErrMoreThanOneInitialMessage):
		return CodeMoreThanOneInitial
	case errors.Is(err, ErrVersionIncompatibility):
		return CodeVersionIncompatible
	case errors.Is(err, ErrWrongEndian):
		return CodeWrongEndian
	case errors.Is(err, ErrWrongMagicNumber):
		return CodeWrongMagicNumber
	case errors.Is(err, ErrMessageShorterThanExpected):
		return CodeMessageShort
	case errors.Is(err, ErrUnexpectedRepresentation):
		return CodeUnexpectedRepresent
	default:
		return CodeUnknownMessage
	}
}

// Message is one framed unit on the byte stream.
type Message struct {
	Type    MessageType
	Payload []byte
}

func NewInitialMessage() Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], Version)
	binary.BigEndian.PutUint16(payload[2:4], MagicNumber)

	return Message{Type: InitialMessage, Payload: payload}
}

func NewRepresentationMessage() Message {
	return Message{Type: RepresentationMessage}
}

func NewDiplomacyMessage(tokens []Token) Message {
	return Message{Type: DiplomacyMessage, Payload: BytesFromTokens(tokens)}
}

func NewFinalMessage() Message {
	return Message{Type: FinalMessage}
}

func NewErrorMessage(code ErrorCode) Message {
	return Message{Type: ErrorMessage, Payload: []byte{0x00, byte(code)}}
}

// Validate checks the per-type payload shape. Framing problems found here
// are fatal to the connection; the command layer is only consulted once a
// frame validates.
func (m Message) Validate() error {
	switch m.Type {
	case InitialMessage:
		if len(m.Payload) != 4 {
			return fmt.Errorf("initial payload is %d bytes, want 4: %w",
				len(m.Payload), ErrMessageShorterThanExpected)
		}

	case DiplomacyMessage:
		if len(m.Payload)%2 != 0 {
			return fmt.Errorf("diplomacy payload of %d bytes is not whole token pairs: %w",
				len(m.Payload), ErrMessageShorterThanExpected)
		}

	case ErrorMessage:
		if len(m.Payload) != 2 {
			return fmt.Errorf("error payload is %d bytes, want 2: %w",
				len(m.Payload), ErrMessageShorterThanExpected)
		}

	case RepresentationMessage, FinalMessage:
		// One policy for both roles: these frames carry nothing.
		if len(m.Payload) != 0 {
			return fmt.Errorf("%s payload is %d bytes: %w",
				m.Type, len(m.Payload), ErrPayloadNotEmpty)
		}

	default:
		return fmt.Errorf("type byte %d: %w", byte(m.Type), ErrUnknownMessageType)
	}

	return nil
}

// CheckInitial validates the handshake payload of an Initial message,
// distinguishing a swapped-endian peer from a plain bad magic number.
func (m Message) CheckInitial() error {
	if err := m.Validate(); err != nil {
		return err
	}

	version := binary.BigEndian.Uint16(m.Payload[0:2])
	magic := binary.BigEndian.Uint16(m.Payload[2:4])

	switch magic {
	case MagicNumber:
		// fall through to the version check
	case magicSwapped:
		return ErrWrongEndian
	default:
		return fmt.Errorf("got 0x%04X: %w", magic, ErrWrongMagicNumber)
	}

	if version != Version {
		return fmt.Errorf("peer version %d, ours %d: %w", version, Version, ErrVersionIncompatibility)
	}

	return nil
}

// Code returns the error code of an Error message.
func (m Message) Code() (ErrorCode, bool) {
	if m.Type != ErrorMessage || len(m.Payload) != 2 {
		return 0, false
	}

	return ErrorCode(m.Payload[1]), true
}

// WriteMessage frames and writes one message.
func WriteMessage(w io.Writer, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	buf := make([]byte, headerLen+len(m.Payload))
	buf[0] = byte(m.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(m.Payload)))
	copy(buf[headerLen:], m.Payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}

	return nil
}

// ReadMessage reads exactly one message, blocking until the whole frame
// has arrived.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerLen]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	m := Message{Type: MessageType(header[0])}

	length := binary.BigEndian.Uint16(header[2:4])
	if length > 0 {
		m.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return Message{}, fmt.Errorf("failed to read %s payload: %w", m.Type, err)
		}
	}

	return m, m.Validate()
}

// FrameReader reassembles messages from a stream of byte chunks. A
// connection feeds it whatever a read produced and then drains every
// complete frame; a trailing partial frame stays buffered for the next
// chunk rather than failing.
type FrameReader struct {
	buf []byte
}

// Feed appends one inbound chunk.
func (f *FrameReader) Feed(data []byte) {
	f.buf = append(f.buf, data...)
}

// Buffered returns how many bytes are waiting for a complete frame.
func (f *FrameReader) Buffered() int {
	return len(f.buf)
}

// Next extracts the next complete frame. ok is false when the buffer does
// not yet hold a whole frame. An invalid frame returns its validation
// error with the frame's bytes consumed.
func (f *FrameReader) Next() (m Message, ok bool, err error) {
	if len(f.buf) < headerLen {
		return Message{}, false, nil
	}

	length := int(binary.BigEndian.Uint16(f.buf[2:4]))
	if len(f.buf) < headerLen+length {
		return Message{}, false, nil
	}

	m = Message{Type: MessageType(f.buf[0])}

	if length > 0 {
		m.Payload = make([]byte, length)
		copy(m.Payload, f.buf[headerLen:headerLen+length])
	}

	f.buf = f.buf[headerLen+length:]

	return m, true, m.Validate()
}
