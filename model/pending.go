package model

// NoNominee is the sentinel accusation key for an explicit "no nominee"
// motion during discussion.
const NoNominee = "NO_NOMINEE"

// PendingAction is an in-flight night action, keyed by actor in the
// pending record so a later submission replaces an earlier one.
type PendingAction struct {
	Type     ActionType `json:"type"`
	TargetID string     `json:"targetId"`
}

// PendingVote is an in-flight day vote, keyed by voter.
type PendingVote struct {
	NomineeID string    `json:"nomineeId,omitempty"`
	Value     VoteValue `json:"value"`
}

// Investigation is a resolved detective result carried from night
// finalization to day open for private delivery.
type Investigation struct {
	ActorID  string `json:"actorId"`
	TargetID string `json:"targetId"`
	IsMafia  bool   `json:"isMafia"`
}

// Pending is the single mutable in-flight record a room owns for the
// current sub-stage. It is replaced wholesale on every phase transition;
// nothing is merged across stages.
type Pending struct {
	Stage          Stage
	Actions        map[string]PendingAction
	Votes          map[string]PendingVote
	Expected       map[string]struct{}
	Accusers       map[string]map[string]struct{} // target key -> accuser set
	AccuserOf      map[string]string              // accuser -> target key
	NomineeID      string
	Nominees       []string
	Investigations []Investigation
	RevoteRound    int
}

func NewPending(stage Stage) *Pending {
	return &Pending{
		Stage:     stage,
		Actions:   make(map[string]PendingAction),
		Votes:     make(map[string]PendingVote),
		Expected:  make(map[string]struct{}),
		Accusers:  make(map[string]map[string]struct{}),
		AccuserOf: make(map[string]string),
	}
}

// AllExpectedResponded reports whether every expected actor has at least
// one recorded action (night), accusation (discussion) or vote (voting).
func (p *Pending) AllExpectedResponded() bool {
	if len(p.Expected) == 0 {
		return true
	}
	for id := range p.Expected {
		switch p.Stage {
		case StageVoting:
			if _, ok := p.Votes[id]; !ok {
				return false
			}
		case StageDiscussion:
			if _, ok := p.AccuserOf[id]; !ok {
				return false
			}
		default:
			if _, ok := p.Actions[id]; !ok {
				return false
			}
		}
	}
	return true
}

// Accuse records or moves an accusation. Each accuser contributes to
// exactly one tally entry; re-accusing removes the previous entry first.
// Returns true when this was the accuser's first accusation.
func (p *Pending) Accuse(accuserID, targetKey string) bool {
	prev, had := p.AccuserOf[accuserID]
	if had {
		if set, ok := p.Accusers[prev]; ok {
			delete(set, accuserID)
			if len(set) == 0 {
				delete(p.Accusers, prev)
			}
		}
	}
	set, ok := p.Accusers[targetKey]
	if !ok {
		set = make(map[string]struct{})
		p.Accusers[targetKey] = set
	}
	set[accuserID] = struct{}{}
	p.AccuserOf[accuserID] = targetKey
	return !had
}

// TopAccused returns the accusation target(s) holding the strictly
// highest accuser count, excluding the no-nominee sentinel.
func (p *Pending) TopAccused() []string {
	max := 0
	for key, set := range p.Accusers {
		if key == NoNominee {
			continue
		}
		if len(set) > max {
			max = len(set)
		}
	}
	if max == 0 {
		return nil
	}
	top := make([]string, 0, 1)
	for key, set := range p.Accusers {
		if key == NoNominee {
			continue
		}
		if len(set) == max {
			top = append(top, key)
		}
	}
	return top
}

// VoteTally recomputes the live nominee tallies and the no-lynch count
// from the recorded votes.
func (p *Pending) VoteTally() (map[string]int, int) {
	tally := make(map[string]int)
	noLynch := 0
	for _, v := range p.Votes {
		if v.Value == VoteNoLynch {
			noLynch++
		} else if v.NomineeID != "" {
			tally[v.NomineeID]++
		}
	}
	return tally, noLynch
}

// AccusationTally returns accuser counts per target key, including the
// no-nominee sentinel, for snapshot display.
func (p *Pending) AccusationTally() map[string]int {
	tally := make(map[string]int, len(p.Accusers))
	for key, set := range p.Accusers {
		tally[key] = len(set)
	}
	return tally
}
