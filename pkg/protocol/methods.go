package protocol

import "time"

// OutboundFrame is a single JSON frame sent from the tunnel to the relay,
// matching spec.md §6's relay WebSocket protocol: {type, timestamp, ts_unix, data}.
type OutboundFrame struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TSUnix    int64       `json:"ts_unix"`
	Data      interface{} `json:"data"`
}

// NewOutboundFrame stamps now and ts_unix consistently for every emitted frame.
func NewOutboundFrame(frameType string, data interface{}) OutboundFrame {
	now := time.Now()
	return OutboundFrame{Type: frameType, Timestamp: now, TSUnix: now.Unix(), Data: data}
}

// InboundFrame is a single JSON frame received from the relay.
type InboundFrame struct {
	Type  string          `json:"type"`
	CmdID string          `json:"cmd_id,omitempty"`
	Data  InboundFrameData `json:"data"`
}

// InboundFrameData carries the union of fields any inbound frame type might
// populate; callers read only the fields relevant to Type.
type InboundFrameData struct {
	Command string `json:"command,omitempty"` // for control_command
	Task    string `json:"task,omitempty"`
	Text    string `json:"text,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`
	Config  string `json:"config,omitempty"` // raw config document for update_config
}

// CommandResponse echoes cmd_id on the reply to an inbound frame.
type CommandResponse struct {
	Type  string      `json:"type"`
	CmdID string      `json:"cmd_id"`
	Data  interface{} `json:"data"`
}

func NewCommandResponse(cmdID string, data interface{}) CommandResponse {
	return CommandResponse{Type: "command_response", CmdID: cmdID, Data: data}
}

// ProcessStatus is the payload of a tars_process_status frame and the
// response to get_process_status / get_stats.
type ProcessStatus struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
	Adopted       bool   `json:"adopted"`
	StartedAt     string `json:"started_at,omitempty"`
	ActiveTasks   int    `json:"active_tasks"`
	MaxParallel   int    `json:"max_parallel"`
	RestartCount  int    `json:"restart_count"`
}
