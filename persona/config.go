package persona

import (
	"os"
	"strconv"
	"sync"
	"time"
)

type Config struct {
	mu sync.RWMutex

	// ConfidenceThreshold is the floor below which extracted candidates are
	// discarded instead of persisted.
	ConfidenceThreshold float64

	// ExtractionTimeout bounds the external collaborator call; on expiry
	// the turn fails retryable instead of leaving a partial fact.
	ExtractionTimeout time.Duration

	SearchLimit  int
	ListPageSize int

	// VisitorsMayList toggles whether visitors can enumerate stored facts.
	VisitorsMayList bool

	// Owners maps subject id to additional actor ids with owner capability.
	// A subject is always an owner of their own base.
	Owners map[string][]string
}

func newConfig() *Config {
	c := &Config{
		ConfidenceThreshold: 0.6,
		ExtractionTimeout:   10 * time.Second,
		SearchLimit:         5,
		ListPageSize:        50,
		VisitorsMayList:     os.Getenv("PERSONA_VISITOR_LIST") != "0",
		Owners:              make(map[string][]string),
	}
	if v := os.Getenv("PERSONA_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("PERSONA_EXTRACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.ExtractionTimeout = d
		}
	}
	return c
}

func (c *Config) threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ConfidenceThreshold
}

func (c *Config) extractionTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ExtractionTimeout
}

func (c *Config) searchLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SearchLimit <= 0 {
		return 5
	}
	return c.SearchLimit
}

func (c *Config) listPageSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ListPageSize <= 0 {
		return 50
	}
	return c.ListPageSize
}

func (c *Config) addOwner(subjectID string, actorIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Owners[subjectID] = append(c.Owners[subjectID], actorIDs...)
}

func (c *Config) gate() *Gate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owners := make(map[string][]string, len(c.Owners))
	for k, v := range c.Owners {
		owners[k] = append([]string(nil), v...)
	}
	return NewGate(owners, c.VisitorsMayList)
}
