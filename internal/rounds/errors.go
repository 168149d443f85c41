package rounds

import "errors"

var (
	ErrAccessDisabled  = errors.New("competition access is disabled")
	ErrBanned          = errors.New("team is banned")
	ErrInvalidName     = errors.New("invalid team name")
	ErrNotLoggedIn     = errors.New("no team logged in")
	ErrNotPlaying      = errors.New("team is not playing")
	ErrRoundLocked     = errors.New("round is locked")
	ErrRoundCompleted  = errors.New("round already completed")
	ErrNotInRound      = errors.New("no round in progress")
	ErrRoundActive     = errors.New("a round is already in progress")
	ErrModeNotChosen   = errors.New("round 2 mode not chosen")
	ErrModeMismatch    = errors.New("round 2 was chosen with another mode")
	ErrStaleQuestion   = errors.New("question already answered")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrNotPromoted     = errors.New("team has not been promoted")
	ErrInvalidPhase    = errors.New("phase not reachable")
)
