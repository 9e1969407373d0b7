package room

import "github.com/wfunc/undercover/models"

// Observer is told about every phase change. It runs while the room is
// locked and must not call back into the room.
type Observer interface {
	PhaseChanged(code string, from, to models.Phase)
}
