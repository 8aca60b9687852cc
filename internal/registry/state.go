package registry

// State is a connection's lifecycle tag. Connecting and Error belong to
// connections that have not (or not successfully) authenticated yet and
// are tracked by the protocol server; entries in the registry itself
// only ever carry Paired or Recording.
type State string

const (
	Connecting   State = "connecting"
	Connected    State = "connected"
	Paired       State = "paired"
	Recording    State = "recording"
	Failed       State = "error"
	Disconnected State = "disconnected"
)
