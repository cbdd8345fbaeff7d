package phase

// Phase is a named stage of a pipeline. Priority is its position in the
// direction's total order.
type Phase struct {
	Name     string
	Priority int
}

func (p Phase) String() string {
	return p.Name
}

// Inbound phase names
const (
	Receive      = "receive"
	PreStream    = "pre-stream"
	UserStream   = "user-stream"
	PostStream   = "post-stream"
	Read         = "read"
	PreProtocol  = "pre-protocol"
	UserProtocol = "user-protocol"
	PostProtocol = "post-protocol"
	Unmarshal    = "unmarshal"
	PreLogical   = "pre-logical"
	UserLogical  = "user-logical"
	PostLogical  = "post-logical"
	PreInvoke    = "pre-invoke"
	Invoke       = "invoke"
	PostInvoke   = "post-invoke"
)

// Outbound phase names that do not also appear inbound
const (
	Setup       = "setup"
	PrepareSend = "prepare-send"
	Write       = "write"
	Marshal     = "marshal"
	Send        = "send"
)

// EndingSuffix marks the mirror phase that runs after Send
const EndingSuffix = "-ending"

// Ending returns the name of the ending mirror of an outbound phase
func Ending(name string) string {
	return name + EndingSuffix
}

// Outbound ending phase names used by the runtime
var (
	SetupEnding       = Ending(Setup)
	PrepareSendEnding = Ending(PrepareSend)
	WriteEnding       = Ending(Write)
	SendEnding        = Ending(Send)
)

// DefaultInbound is the default inbound phase order
func DefaultInbound() []string {
	return []string{
		Receive,
		PreStream,
		UserStream,
		PostStream,
		Read,
		PreProtocol,
		UserProtocol,
		PostProtocol,
		Unmarshal,
		PreLogical,
		UserLogical,
		PostLogical,
		PreInvoke,
		Invoke,
		PostInvoke,
	}
}

// DefaultOutbound is the default outbound phase order. Each phase before Send
// gets an ending mirror after Send, in reverse order, so that work opened in a
// phase can be finished once the message has been sent.
func DefaultOutbound() []string {
	forward := []string{
		Setup,
		PreLogical,
		UserLogical,
		PostLogical,
		PrepareSend,
		PreStream,
		PreProtocol,
		Write,
		Marshal,
		UserProtocol,
		PostProtocol,
		UserStream,
		PostStream,
		Send,
	}

	names := make([]string, 0, len(forward)*2)
	names = append(names, forward...)
	for i := len(forward) - 1; i >= 0; i-- {
		names = append(names, Ending(forward[i]))
	}
	return names
}
