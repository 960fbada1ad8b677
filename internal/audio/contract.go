// Package audio defines the wire contract the Audio Responder (spec
// §4.K) speaks over its single WebSocket connection to the external
// audio service (spec §4.M, §6). It is a pure data contract: no
// connection handling, no retries, just the message shapes both sides
// agreed on — grounded on control_plane/store/types.go's JSON-tagged
// struct style.
package audio

// Channel is one of the six channels multiplexed over the connection.
type Channel string

const (
	ChannelNarration  Channel = "narration"
	ChannelCommentary Channel = "commentary"
	ChannelAmbient    Channel = "ambient"
	ChannelMusic      Channel = "music"
	ChannelSFX        Channel = "sfx"
	ChannelEffects    Channel = "effects"
)

// Channels lists every channel the responder scans a request payload
// for, in a fixed iteration order.
var Channels = []Channel{ChannelNarration, ChannelCommentary, ChannelAmbient, ChannelMusic, ChannelSFX, ChannelEffects}

// Command is a recognized control instruction (spec §6).
type Command string

const (
	CommandRegisterSync Command = "register_sync"
	CommandPause        Command = "pause"
	CommandResume       Command = "resume"
	CommandClearQueue   Command = "clear_queue"
)

// StoryUpdate is the {type:"story_update", channel, data, metadata}
// outbound message shape.
type StoryUpdate struct {
	Type     string  `json:"type"`
	Channel  Channel `json:"channel"`
	Data     any     `json:"data"`
	Metadata any     `json:"metadata,omitempty"`
}

// NewStoryUpdate builds a story_update message for channel.
func NewStoryUpdate(channel Channel, data any) StoryUpdate {
	return StoryUpdate{Type: "story_update", Channel: channel, Data: data}
}

// Control is the {type:"control", command, channel?, params?} outbound
// message shape.
type Control struct {
	Type    string  `json:"type"`
	Command Command `json:"command"`
	Channel Channel `json:"channel,omitempty"`
	Params  any     `json:"params,omitempty"`
}

// NewControl builds a control message. channel is left empty for
// commands that aren't channel-scoped (register_sync, clear_queue).
func NewControl(command Command, params any) Control {
	return Control{Type: "control", Command: command, Params: params}
}

// RegisterSyncParams is the params payload carried by a register_sync
// control (spec §6).
type RegisterSyncParams struct {
	SyncID   string    `json:"syncId"`
	Channels []Channel `json:"channels"`
	Metadata any       `json:"metadata,omitempty"`
}

// InboundKind distinguishes the three asynchronous message kinds the
// external service may send back. The responder reads and discards every
// inbound message of any kind; its offline/online flag follows the dial
// and read outcomes, not message content.
type InboundKind string

const (
	InboundStatus   InboundKind = "audio_status"
	InboundComplete InboundKind = "audio_complete"
	InboundError    InboundKind = "audio_error"
)

// InboundMessage is the minimal shape read off the wire to recognize an
// asynchronous message's kind.
type InboundMessage struct {
	Type InboundKind `json:"type"`
}

// ItemResult is the per-item outcome the responder collects for each
// channel update or control it sends (spec §4.K).
type ItemResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DurationMs int64  `json:"durationMs"`
}

// Status is the aggregate status reported on orchestrator:audio:result
// (spec §4.K).
type Status string

const (
	StatusQueued  Status = "queued"
	StatusPartial Status = "partial"
	StatusOffline Status = "offline"
	StatusNoop    Status = "noop"
)
