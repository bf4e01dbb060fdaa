package persona

import (
	"fmt"
	"slices"
)

// Capability is the transient classification of the acting identity for one
// request. It is derived per call and never cached, since ownership is
// external configuration that can change between turns.
type Capability int

const (
	VisitorCapability Capability = iota
	OwnerCapability
)

func (c Capability) String() string {
	if c == OwnerCapability {
		return "owner"
	}
	return "visitor"
}

type Operation int

const (
	OpPutFact Operation = iota
	OpUpdateFact
	OpDeleteFact
	OpGetFact
	OpListFacts
	OpSearchFacts
)

func (op Operation) String() string {
	switch op {
	case OpPutFact:
		return "put_fact"
	case OpUpdateFact:
		return "update_fact"
	case OpDeleteFact:
		return "delete_fact"
	case OpGetFact:
		return "get_fact"
	case OpListFacts:
		return "list_facts"
	case OpSearchFacts:
		return "search_facts"
	}
	return "unknown"
}

func (op Operation) mutates() bool {
	switch op {
	case OpPutFact, OpUpdateFact, OpDeleteFact:
		return true
	}
	return false
}

// Gate decides per request whether an actor may write or only read a
// subject's knowledge base. Pure over its configuration; no persistence.
type Gate struct {
	owners map[string][]string

	// visitorsMayList resolves whether visitors can enumerate which facts
	// exist, as opposed to only answering pointed queries.
	visitorsMayList bool
}

func NewGate(owners map[string][]string, visitorsMayList bool) *Gate {
	return &Gate{owners: owners, visitorsMayList: visitorsMayList}
}

// Classify returns the actor's capability for the subject. A subject always
// owns their own knowledge base; additional owners come from configuration.
func (g *Gate) Classify(subjectID, actorID string) Capability {
	if actorID != "" && actorID == subjectID {
		return OwnerCapability
	}
	if slices.Contains(g.owners[subjectID], actorID) {
		return OwnerCapability
	}
	return VisitorCapability
}

// Authorize returns ErrForbidden when the capability does not cover the
// operation. Owners may do everything; visitors only read.
func (g *Gate) Authorize(c Capability, op Operation) error {
	if c == OwnerCapability {
		return nil
	}
	if op.mutates() {
		return fmt.Errorf("%s as visitor: %w", op, ErrForbidden)
	}
	if op == OpListFacts && !g.visitorsMayList {
		return fmt.Errorf("%s as visitor: %w", op, ErrForbidden)
	}
	return nil
}
