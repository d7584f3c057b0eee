// pkg/gateway/states.go
package gateway

// ConnState — состояние жизненного цикла соединения.
type ConnState int32

const (
	// StateDisconnected — начальное состояние, соединения нет.
	StateDisconnected ConnState = iota
	// StateConnecting — идёт установка соединения.
	StateConnecting
	// StateConnected — рукопожатие завершено, подписок ещё нет.
	StateConnected
	// StateSubscribed — шлюз подтвердил хотя бы одну подписку.
	StateSubscribed
	// StateReconnecting — соединение потеряно, ждём бэкофф перед повтором.
	StateReconnecting
	// StateClosed — клиент закрыт явно; терминальное состояние.
	StateClosed
)

var connStateNames = map[ConnState]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateSubscribed:   "subscribed",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return "unknown"
}
