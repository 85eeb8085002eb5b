package frame

import "strconv"

// CommandID is the application message type. The codec never interprets it.
type CommandID uint16

const (
	CmdAuthRequest    CommandID = 1001
	CmdAuthResponse   CommandID = 1002
	CmdPublishMessage CommandID = 2001
	CmdSubscribeTopic CommandID = 3001
	CmdHeartbeat      CommandID = 9001
)

var commandNames = map[CommandID]string{
	CmdAuthRequest:    "auth.request",
	CmdAuthResponse:   "auth.response",
	CmdPublishMessage: "publish",
	CmdSubscribeTopic: "subscribe",
	CmdHeartbeat:      "heartbeat",
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "cmd(" + strconv.Itoa(int(c)) + ")"
}

// ParseCommandID accepts a known command name or a decimal id.
func ParseCommandID(raw string) (CommandID, bool) {
	for id, name := range commandNames {
		if name == raw {
			return id, true
		}
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, false
	}
	return CommandID(n), true
}
