package observerproto

import "encoding/json"

// Version is the observer protocol version.
const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypePosition  = "POSITION"
	TypeEdit      = "EDIT"
	TypeRegion    = "REGION"
	TypeEdited    = "EDITED"
	TypeError     = "ERROR"
)

// Edit actions.
const (
	ActionPlace  = "PLACE"
	ActionRemove = "REMOVE"
)

// Error codes.
const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBusy       = "E_BUSY"
	ErrClosed     = "E_CLOSED"
	ErrInternal   = "E_INTERNAL"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Sorted asks for added chunks nearest first.
	Sorted bool `json:"sorted,omitempty"`
	// Purge evicts far inactive chunks after each region update.
	Purge bool `json:"purge,omitempty"`
}

// Client -> Server. One frame of observer movement.
type PositionMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Seq             uint64     `json:"seq"`
	Pos             [3]float32 `json:"pos"`
}

// Client -> Server. Place or remove the block under a ray.
type EditMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Seq             uint64     `json:"seq"`
	Action          string     `json:"action"`
	Origin          [3]float32 `json:"origin"`
	Dir             [3]float32 `json:"dir"`
	MaxDist         float32    `json:"max_dist,omitempty"`
}

// Server -> Client. Active set changes caused by one POSITION.
type RegionMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Seq             uint64   `json:"seq"`
	Added           [][3]int `json:"added"`
	Removed         [][3]int `json:"removed"`
	Active          int      `json:"active"`
	Resident        int      `json:"resident"`
	Loading         int      `json:"loading"`
	Purged          int      `json:"purged,omitempty"`
}

// Server -> Client. Outcome of an EDIT.
type EditedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Hit             bool   `json:"hit"`
	Cell            [3]int `json:"cell,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
	Busy            bool        `json:"busy"`
}

type WorldParams struct {
	ChunkSize       [3]int     `json:"chunk_size"`
	Seed            int64      `json:"seed"`
	TerrainHeight   int        `json:"terrain_height"`
	Extent          [3]float32 `json:"extent"`
	MaxActiveChunks int        `json:"max_active_chunks"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
