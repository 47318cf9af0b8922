package search

import "github.com/kailas-cloud/cinefuse/internal/domain"

// State is a stage of the query pipeline.
type State int

// Pipeline states.
const (
	Received State = iota
	EmbeddingRequested
	Retrieving
	Merging
	Fusing
	Normalizing
	Finalizing
	Completed
	Failed
)

var stateNames = [...]string{
	Received:           "received",
	EmbeddingRequested: "embedding_requested",
	Retrieving:         "retrieving",
	Merging:            "merging",
	Fusing:             "fusing",
	Normalizing:        "normalizing",
	Finalizing:         "finalizing",
	Completed:          "completed",
	Failed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	Received:           {EmbeddingRequested, Retrieving},
	EmbeddingRequested: {Retrieving},
	Retrieving:         {Merging},
	Merging:            {Fusing},
	Fusing:             {Normalizing},
	Normalizing:        {Finalizing},
	Finalizing:         {Completed},
}

// pipeline tracks the state of one query. It is a value so that Compare can
// fork it after retrieval.
type pipeline struct {
	state State
}

// advance moves to next or reports an invariant violation for an illegal move.
func (p *pipeline) advance(next State) error {
	for _, allowed := range transitions[p.state] {
		if allowed == next {
			p.state = next
			return nil
		}
	}
	from := p.state
	p.state = Failed
	return domain.NewInvariantViolation(from.String(), "illegal transition to %s", next)
}

// fail moves to the terminal Failed state. Completed queries stay completed.
func (p *pipeline) fail() {
	if p.state != Completed {
		p.state = Failed
	}
}
