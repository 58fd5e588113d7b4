package core

type MediaEventType int

const (
	// MediaRemotePublished fires when a remote identity publishes a track.
	MediaRemotePublished MediaEventType = iota
	// MediaRemoteLeft fires when a remote identity leaves the channel.
	MediaRemoteLeft
	// MediaVolumeLevels carries a periodic per-identity audio level snapshot.
	MediaVolumeLevels
)

// MediaEvent is the single event shape the controller consumes; keeping
// the transition table centralized beats per-callback wiring.
type MediaEvent struct {
	Type     MediaEventType
	Identity uint32
	Kind     TrackKind
	// Levels is set for MediaVolumeLevels only.
	Levels map[uint32]int
}
