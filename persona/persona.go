package persona

import (
	"context"
	"time"

	"go.uber.org/zap"

	"personigo/extract"
	"personigo/storage"
)

// Persona is the knowledge engine: it turns extracted statements into
// durable facts for one or more subjects and answers queries about them.
// One instance serves concurrent turns for any number of subjects; all
// shared mutable state lives in the backing store.
type Persona struct {
	Config  *Config
	Storage *storage.Manager

	Extractor extract.Extractor
	Phraser   Phraser

	log *zap.Logger
}

type Option func(*Persona)

func New(opts ...Option) *Persona {
	p := &Persona{
		Config: newConfig(),
	}

	for _, opt := range opts {
		opt(p)
	}

	// Defaults
	if p.Storage == nil {
		p.Storage = storage.NewManager()
	}
	if p.Extractor == nil {
		p.Extractor = extract.NewExtractor(extract.Config{})
	}
	if p.Phraser == nil {
		p.Phraser = TemplatePhraser{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// WithStorageConn wires a caller-supplied connection (*sql.DB or
// *mongo.Database) through the storage registry.
func WithStorageConn(conn any) Option {
	return func(p *Persona) {
		p.Storage = storage.NewManager()
		_ = p.Storage.Start(conn)
	}
}

func WithExtractor(e extract.Extractor) Option {
	return func(p *Persona) { p.Extractor = e }
}

func WithPhraser(ph Phraser) Option {
	return func(p *Persona) { p.Phraser = ph }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Persona) { p.log = l }
}

// WithOwner grants actorIDs owner capability over subjectID's knowledge
// base, in addition to the subject themself.
func WithOwner(subjectID string, actorIDs ...string) Option {
	return func(p *Persona) { p.Config.addOwner(subjectID, actorIDs...) }
}

func WithConfidenceThreshold(t float64) Option {
	return func(p *Persona) { p.Config.ConfidenceThreshold = t }
}

func WithExtractionTimeout(d time.Duration) Option {
	return func(p *Persona) { p.Config.ExtractionTimeout = d }
}

func WithVisitorsMayList(v bool) Option {
	return func(p *Persona) { p.Config.VisitorsMayList = v }
}

// Classify reports the actor's capability for the subject. Computed fresh
// on every call; never cached across requests.
func (p *Persona) Classify(subjectID, actorID string) Capability {
	return p.Config.gate().Classify(subjectID, actorID)
}

// ListFacts is the read-only programmatic boundary: insertion-ordered facts
// with a continuation token, no actor gate.
func (p *Persona) ListFacts(ctx context.Context, subjectID string, limit int, token string) ([]Fact, string, error) {
	return NewStore(p).ListFacts(ctx, subjectID, limit, token)
}

// SearchFacts is the read-only programmatic boundary for ranked search.
func (p *Persona) SearchFacts(ctx context.Context, subjectID, query string) ([]Fact, error) {
	return NewStore(p).SearchFacts(ctx, subjectID, query)
}
