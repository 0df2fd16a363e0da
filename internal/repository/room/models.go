package room

// Track is the display metadata snapshot captured when a track starts
// playing. It is never re-resolved afterwards.
type Track struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Artwork  string `json:"artwork"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
}

// Player is the authoritative playback state of one room.
type Player struct {
	Track      Track `json:"track"`
	PositionMs int   `json:"position_ms"`
	IsPaused   bool  `json:"is_paused"`
	// UpdatedAt is the unix-millisecond timestamp of the last mutation,
	// kept so very-late joiners can extrapolate elapsed time.
	UpdatedAt int64 `json:"updated_at"`
}

// Removal reports one room a connection was evicted from.
type Removal struct {
	RoomKey       string
	Username      string
	ListenerCount int
}
