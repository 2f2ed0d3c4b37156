package memory

import (
	"errors"
	"time"
)

var (
	// ErrUnknownTier is returned for a tier name outside the four tiers.
	ErrUnknownTier = errors.New("unknown memory tier")
	// ErrNilPayload is returned when a store call carries no payload.
	ErrNilPayload = errors.New("memory payload is nil")
)

// Config controls capacity, consolidation, decay and compression behavior.
type Config struct {
	MaxShortTermItems      int           // per short-term list, default 100
	ConsolidationThreshold int           // combined short-term lists, default 50
	MaxResults             int           // ranked results per query, default 50
	PromotePriority        int           // contexts above this are promoted, default 7
	PromoteMessages        int           // contexts with more messages are promoted, default 10
	InteractionGroupMin    int           // default 3
	DecisionGroupMin       int           // default 2
	LearningWindow         time.Duration // default 7 days
	LinkSimilarity         float64       // default 0.6
	MergeSimilarity        float64       // default 0.8
	PatternDecayAge        time.Duration // default 30 days
	NodeDecayAge           time.Duration // default 60 days
	DecayFactor            float64       // default 0.95
	PatternFloor           float64       // default 0.1
	CompressGroupMin       int           // groups larger than this are compressed, default 5
	RecencyHalfLife        time.Duration // e-folding time of the recency bonus, default 30 days
}

// DefaultConfig returns the stock memory settings.
func DefaultConfig() Config {
	return Config{
		MaxShortTermItems:      100,
		ConsolidationThreshold: 50,
		MaxResults:             50,
		PromotePriority:        7,
		PromoteMessages:        10,
		InteractionGroupMin:    3,
		DecisionGroupMin:       2,
		LearningWindow:         7 * 24 * time.Hour,
		LinkSimilarity:         0.6,
		MergeSimilarity:        0.8,
		PatternDecayAge:        30 * 24 * time.Hour,
		NodeDecayAge:           60 * 24 * time.Hour,
		DecayFactor:            0.95,
		PatternFloor:           0.1,
		CompressGroupMin:       5,
		RecencyHalfLife:        30 * 24 * time.Hour,
	}
}

// withDefaults fills zero fields from DefaultConfig. MaxResults is capped at 50.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxShortTermItems <= 0 {
		c.MaxShortTermItems = d.MaxShortTermItems
	}
	if c.ConsolidationThreshold <= 0 {
		c.ConsolidationThreshold = d.ConsolidationThreshold
	}
	if c.MaxResults <= 0 || c.MaxResults > d.MaxResults {
		c.MaxResults = d.MaxResults
	}
	if c.PromotePriority <= 0 {
		c.PromotePriority = d.PromotePriority
	}
	if c.PromoteMessages <= 0 {
		c.PromoteMessages = d.PromoteMessages
	}
	if c.InteractionGroupMin <= 0 {
		c.InteractionGroupMin = d.InteractionGroupMin
	}
	if c.DecisionGroupMin <= 0 {
		c.DecisionGroupMin = d.DecisionGroupMin
	}
	if c.LearningWindow <= 0 {
		c.LearningWindow = d.LearningWindow
	}
	if c.LinkSimilarity <= 0 {
		c.LinkSimilarity = d.LinkSimilarity
	}
	if c.MergeSimilarity <= 0 {
		c.MergeSimilarity = d.MergeSimilarity
	}
	if c.PatternDecayAge <= 0 {
		c.PatternDecayAge = d.PatternDecayAge
	}
	if c.NodeDecayAge <= 0 {
		c.NodeDecayAge = d.NodeDecayAge
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		c.DecayFactor = d.DecayFactor
	}
	if c.PatternFloor <= 0 {
		c.PatternFloor = d.PatternFloor
	}
	if c.CompressGroupMin <= 0 {
		c.CompressGroupMin = d.CompressGroupMin
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = d.RecencyHalfLife
	}
	return c
}
