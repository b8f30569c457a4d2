package link

// State 链路状态机
// Disconnected → Scanning → Connecting → Handshaking → Ready，任何失败回到 Disconnected
type State int32

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
