package room

import "github.com/jamroom/server/internal/repository/room"

type Track struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Artwork  string `json:"artwork"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
}

// Snapshot is the wire form of a room's playback state, sent to late
// joiners and sync requesters.
type Snapshot struct {
	TrackURI   string `json:"track_uri"`
	TrackInfo  Track  `json:"track_info"`
	PositionMs int    `json:"position_ms"`
	IsPaused   bool   `json:"is_paused"`
}

func trackFromRepo(t room.Track) Track {
	return Track{
		URI:      t.URI,
		Title:    t.Title,
		Artist:   t.Artist,
		Artwork:  t.Artwork,
		Album:    t.Album,
		Duration: t.Duration,
	}
}

func trackToRepo(t Track) room.Track {
	return room.Track{
		URI:      t.URI,
		Title:    t.Title,
		Artist:   t.Artist,
		Artwork:  t.Artwork,
		Album:    t.Album,
		Duration: t.Duration,
	}
}

func snapshotFromPlayer(p room.Player) *Snapshot {
	return &Snapshot{
		TrackURI:   p.Track.URI,
		TrackInfo:  trackFromRepo(p.Track),
		PositionMs: p.PositionMs,
		IsPaused:   p.IsPaused,
	}
}
