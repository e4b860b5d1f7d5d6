package constant

type SessionState string

const (
	StatePlaying   SessionState = "playing"
	StatePaused    SessionState = "paused"
	StateBuffering SessionState = "buffering"
	StateStopped   SessionState = "stopped"
)

func (s SessionState) String() string {
	return string(s)
}

type Transition string

const (
	TransitionPlay    Transition = "play"
	TransitionPause   Transition = "pause"
	TransitionResume  Transition = "resume"
	TransitionBuffer  Transition = "buffer"
	TransitionWatched Transition = "watched"
	TransitionStop    Transition = "stop"
)

func (t Transition) String() string {
	return string(t)
}

type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
	MediaTypeClip    MediaType = "clip"
	MediaTypeTrack   MediaType = "track"
)

// IsVideo groups media types for the per-type history logging flags.
// Everything that is not a music track counts as video.
func (m MediaType) IsVideo() bool {
	return m != MediaTypeTrack
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
