package bus

// MessageType identifies the wire role of a Message's body.
type MessageType uint8

const (
	// TypeNone carries no protocol meaning; used for local worker notifications.
	TypeNone MessageType = iota
	// TypePayload carries user data, cleartext before encryption / after decryption.
	TypePayload
	// TypeKeyAgreementM1 is the first Noise XX handshake message (-> e).
	TypeKeyAgreementM1
	// TypeKeyAgreementM2 is the second Noise XX handshake message (<- e, ee, s, es).
	TypeKeyAgreementM2
	// TypeKeyAgreementM3 is the third Noise XX handshake message (-> s, se).
	TypeKeyAgreementM3
)

// String renders the message type name for logging.
func (t MessageType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypePayload:
		return "payload"
	case TypeKeyAgreementM1:
		return "key_agreement_m1"
	case TypeKeyAgreementM2:
		return "key_agreement_m2"
	case TypeKeyAgreementM3:
		return "key_agreement_m3"
	default:
		return "unknown"
	}
}

// Message is the fundamental unit of communication on the bus.
type Message struct {
	OnwardRoute Route
	ReturnRoute Route
	Type        MessageType
	Body        []byte
}

// Clone returns a deep copy of the message, safe to mutate independently.
func (m Message) Clone() Message {
	body := make([]byte, len(m.Body))
	copy(body, m.Body)
	return Message{
		OnwardRoute: m.OnwardRoute.Clone(),
		ReturnRoute: m.ReturnRoute.Clone(),
		Type:        m.Type,
		Body:        body,
	}
}
