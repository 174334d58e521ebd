package live

import (
	"time"

	"runwatch/internal/runstate"
)

// State is what the live view knows about the watched run.
type State struct {
	Profile    string
	Snapshot   runstate.Snapshot
	StartedAt  time.Time
	FinishedAt time.Time
	Updates    int
	LastEvent  string
}

// Done reports whether the run reached an outcome the view will not change.
func (s State) Done() bool {
	return s.Snapshot.Terminal() || s.Snapshot.Stopped()
}
