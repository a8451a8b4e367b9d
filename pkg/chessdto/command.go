package chessdto

// Command types accepted by the gateway.
const (
	CmdNewGame        = "new_game"
	CmdLoadPosition   = "load_position"
	CmdMove           = "move"
	CmdResign         = "resign"
	CmdRetryEngine    = "retry_engine"
	CmdSetTimeControl = "set_time_control"
	CmdFlip           = "flip"
)

// Command is one client request. Fields not used by Type are ignored.
type Command struct {
	ID               string  `json:"id,omitempty"`
	Type             string  `json:"type"`
	Side             string  `json:"side,omitempty"`
	FEN              string  `json:"fen,omitempty"`
	From             string  `json:"from,omitempty"`
	To               string  `json:"to,omitempty"`
	Promotion        string  `json:"promotion,omitempty"`
	BaseMinutes      float64 `json:"baseMinutes,omitempty"`
	IncrementSeconds float64 `json:"incrementSeconds,omitempty"`
}

// Message types sent by the gateway.
const (
	MsgSnapshot = "snapshot"
	MsgReply    = "reply"
)

// Envelope wraps every server-to-client message.
type Envelope struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	OK       bool         `json:"ok,omitempty"`
	Error    *DomainError `json:"error,omitempty"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
}
