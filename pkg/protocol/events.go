// Package protocol defines the wire types shared between the core engine
// and its external interfaces (spec.md §6): the tunnel's relay WebSocket
// frames and the action log record format.
package protocol

// ProtocolVersion is bumped whenever a breaking change is made to the
// relay frame shapes below.
const ProtocolVersion = 1

// Outbound frame types (tunnel -> relay). These mirror the Event Bus
// topics (all but kill_switch) plus two frame-only additions (thinking,
// error).
const (
	FrameTarsOutput            = "tars_output"
	FrameTarsProcessStatus     = "tars_process_status"
	FrameTaskReceived          = "task_received"
	FrameToolCalled            = "tool_called"
	FrameToolResult            = "tool_result"
	FrameStatusChange          = "status_change"
	FrameIMessageReceived      = "imessage_received"
	FrameIMessageSent          = "imessage_sent"
	FrameParallelTaskStarted   = "parallel_task_started"
	FrameParallelTaskCompleted = "parallel_task_completed"
	FrameAgentStarted          = "agent_started"
	FrameAgentCompleted        = "agent_completed"
	FrameThinking              = "thinking"
	FrameError                 = "error"
)

// Inbound command names, carried in a control_command frame's "command" field.
const (
	CommandStartTars        = "start_tars"
	CommandStopTars         = "stop_tars"
	CommandKillTars         = "kill_tars"
	CommandRestartTars      = "restart_tars"
	CommandGetProcessStatus = "get_process_status"
	CommandSendTask         = "send_task"
	CommandSendMessage      = "send_message"
)

// Inbound frame types (relay -> tunnel).
const (
	InboundControlCommand = "control_command"
	InboundSendTask       = "send_task"
	InboundKill           = "kill"
	InboundGetStats       = "get_stats"
	InboundGetMemory      = "get_memory"
	InboundSaveMemory     = "save_memory"
	InboundUpdateConfig   = "update_config"
)
