package models

// EngineSettings drives how we query the engine for a move.
type EngineSettings struct {
	Depth      int  `json:"depth"`
	MoveTimeMS int  `json:"move_time_ms"`
	UseDepth   bool `json:"use_depth"` // if false, use movetime
}

// EngineStatus is what the UI shows next to the board.
type EngineStatus struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}
