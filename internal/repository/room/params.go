package room

type AddMemberParams struct {
	RoomKey  string
	ConnId   string
	Username string
}

type RemoveMemberParams struct {
	RoomKey string
	ConnId  string
}

type SetPlayingParams struct {
	RoomKey   string
	Track     Track
	UpdatedAt int64
}

type UpdatePauseStateParams struct {
	RoomKey    string
	IsPaused   bool
	PositionMs int
	UpdatedAt  int64
}

type UpdatePositionParams struct {
	RoomKey    string
	PositionMs int
	UpdatedAt  int64
}

type ReplacePlayerParams struct {
	RoomKey string
	Player  Player
}
