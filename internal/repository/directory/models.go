package directory

// RoomRecord is the durable description of a room, keyed by its code. The
// listeners field is a display-only mirror of the in-memory membership size.
type RoomRecord struct {
	RoomKey   string `redis:"room_key" json:"room_key"`
	Name      string `redis:"name" json:"name"`
	Creator   string `redis:"creator" json:"creator"`
	IsPrivate bool   `redis:"is_private" json:"is_private"`
	Listeners int    `redis:"listeners" json:"listeners"`
	CreatedAt int64  `redis:"created_at" json:"created_at"`
}
