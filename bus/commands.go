package bus

// ChannelCommandKind discriminates the commands the channel manager accepts
// on its inbound queue.
type ChannelCommandKind uint8

const (
	// CmdInitiate asks the manager to start a handshake toward a peer route.
	CmdInitiate ChannelCommandKind = iota
	// CmdStop asks the manager to clear all channels and halt its drain loop.
	CmdStop
	// CmdSendMessage asks the manager to encrypt and forward a Payload.
	CmdSendMessage
	// CmdReceiveMessage delivers an inbound bus Message to the manager.
	CmdReceiveMessage
)

// String renders the command kind name for logging.
func (k ChannelCommandKind) String() string {
	switch k {
	case CmdInitiate:
		return "initiate"
	case CmdStop:
		return "stop"
	case CmdSendMessage:
		return "send_message"
	case CmdReceiveMessage:
		return "receive_message"
	default:
		return "unknown"
	}
}

// ChannelCommand is the single command envelope the channel manager's
// inbound queue carries. Only the fields relevant to Kind are populated.
type ChannelCommand struct {
	Kind ChannelCommandKind

	// Initiate fields.
	Route         Route
	ReturnAddress Address
	StaticKey     []byte

	// SendMessage / ReceiveMessage fields.
	Message Message
}

// RouterCommandKind discriminates the commands the manager issues to the
// surrounding message router.
type RouterCommandKind uint8

const (
	// RouterRegister registers a handler queue under an address category.
	RouterRegister RouterCommandKind = iota
	// RouterSendMessage enqueues a Message for outbound routing.
	RouterSendMessage
	// RouterReceiveMessage delivers a Message to a locally-registered handler.
	RouterReceiveMessage
)

// String renders the router command kind name for logging.
func (k RouterCommandKind) String() string {
	switch k {
	case RouterRegister:
		return "register"
	case RouterSendMessage:
		return "send_message"
	case RouterReceiveMessage:
		return "receive_message"
	default:
		return "unknown"
	}
}

// RouterCommand is the command vocabulary the manager exchanges with the
// external message router over a shared Go channel.
type RouterCommand struct {
	Kind RouterCommandKind

	// Register fields.
	AddressType AddressCategory
	Handler     chan<- ChannelCommand

	// SendMessage / ReceiveMessage fields.
	Message Message
}
