package chessdto

// Snapshot is the state pushed to a viewer after every transition.
// Board is oriented for that viewer: Board[0] is the rank at the top of the screen.
type Snapshot struct {
	State           string   `json:"state"`
	StateText       string   `json:"stateText"`
	Generation      uint64   `json:"generation"`
	SessionID       string   `json:"sessionId,omitempty"`
	PlayerSide      string   `json:"playerSide"`
	SideToMove      string   `json:"sideToMove"`
	Orientation     string   `json:"orientation"`
	FEN             string   `json:"fen"`
	Board           []string `json:"board"`
	Moves           []string `json:"moves"`
	LastMove        string   `json:"lastMove,omitempty"`
	LastSAN         string   `json:"lastSan,omitempty"`
	Clock           Clock    `json:"clock"`
	Outcome         Outcome  `json:"outcome"`
	Requesting      bool     `json:"requesting"`
	Notice          *Notice  `json:"notice,omitempty"`
	TimeControl     string   `json:"timeControl"`
	NextTimeControl string   `json:"nextTimeControl,omitempty"`
}

type Clock struct {
	White       string `json:"white"`
	Black       string `json:"black"`
	WhiteMillis int64  `json:"whiteMillis"`
	BlackMillis int64  `json:"blackMillis"`
	Active      string `json:"active"`
	Running     bool   `json:"running"`
}

type Outcome struct {
	Kind   string `json:"kind"`
	Winner string `json:"winner,omitempty"`
	Method string `json:"method,omitempty"`
	Result string `json:"result"`
	Text   string `json:"text"`
}

type Notice struct {
	Code string `json:"code"`
	Text string `json:"text"`
}
