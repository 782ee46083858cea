package session

import "github.com/pixil98/go-bastion/internal/sim"

// Session-level user errors. These share the sim package's UserError
// type so the transport can report any of them to the acting
// connection with a single errors.As check.
var (
	ErrSessionNotFound  = sim.NewUserError("session not found")
	ErrSessionFull      = sim.NewUserError("session is full")
	ErrAlreadyStarted   = sim.NewUserError("game has already started")
	ErrDuplicateName    = sim.NewUserError("display name is already taken")
	ErrInvalidName      = sim.NewUserError("display name must be 1-24 characters")
	ErrRejoinDenied     = sim.NewUserError("rejoin key was not accepted")
	ErrAlreadyConnected = sim.NewUserError("player is already connected")
	ErrAlreadyInSession = sim.NewUserError("connection is already in a session")
	ErrNotHost          = sim.NewUserError("only the host may do that")
	ErrNotInSession     = sim.NewUserError("you are not in a session")
	ErrNotInLobby       = sim.NewUserError("game is not in the lobby")
	ErrNotPlaying       = sim.NewUserError("game is not running")
	ErrNotPaused        = sim.NewUserError("game is not paused")
	ErrSessionEnded     = sim.NewUserError("session is already over")
)
