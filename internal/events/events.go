package events

import "log"

// RoundFinished is published once per finalized round.
type RoundFinished struct {
	TerminalID  string
	TeamName    string
	Round       int
	Mode        string
	Score       int
	Solved      int
	Total       int
	Status      string
	CodingScore int
	ReactScore  int
}

type Bus struct {
	RoundsFinished chan RoundFinished
}

func NewBus() *Bus {
	return &Bus{
		RoundsFinished: make(chan RoundFinished, 64),
	}
}

// Publish never blocks a round; a full buffer drops the event.
func (b *Bus) Publish(ev RoundFinished) {
	select {
	case b.RoundsFinished <- ev:
	default:
		log.Printf("[Events] Dropped round result for %s (round %d)\n", ev.TeamName, ev.Round)
	}
}
