package memory

import (
	"maps"
	"slices"
	"time"
)

// Tier names one of the four memory categories of a Manager.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierEpisodic  Tier = "episodic"
	TierSemantic  Tier = "semantic"
)

// Tiers lists every tier in lock order.
var Tiers = []Tier{TierShortTerm, TierLongTerm, TierEpisodic, TierSemantic}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrUnknownTier
}

// MemoryRecord is a single stored item. Only the consolidator mutates a
// record after it has been stored.
type MemoryRecord struct {
	ID           string    `json:"id"`
	OwnerAgentID string    `json:"owner_agent_id"`
	RecordType   string    `json:"record_type"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      Payload   `json:"payload"`
}

// clone returns a copy that shares no mutable state with r.
func (r *MemoryRecord) clone() MemoryRecord {
	c := *r
	if r.Payload != nil {
		c.Payload = r.Payload.clonePayload()
	}
	return c
}

// Payload is the closed set of record bodies a Manager can hold.
type Payload interface {
	clonePayload() Payload
}

// Attributes is a free-form payload. Ad-hoc working-memory tags use it, and
// consolidation upgrades it to a typed payload when the fields allow.
type Attributes map[string]any

func (a Attributes) clonePayload() Payload { return Attributes(maps.Clone(a)) }

// Message is one turn of a conversation context.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is a short-term conversation with a customer.
type ConversationContext struct {
	SessionID  string    `json:"session_id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Priority   int       `json:"priority"`
	Messages   []Message `json:"messages"`
}

func (c *ConversationContext) clonePayload() Payload {
	cp := *c
	cp.Messages = slices.Clone(c.Messages)
	return &cp
}

// Lead is an active prospect under triage.
type Lead struct {
	LeadID   string  `json:"lead_id"`
	Name     string  `json:"name,omitempty"`
	Email    string  `json:"email,omitempty"`
	Company  string  `json:"company,omitempty"`
	Source   string  `json:"source,omitempty"`
	Score    float64 `json:"score"`
	Category string  `json:"category,omitempty"`
}

func (l *Lead) clonePayload() Payload { cp := *l; return &cp }

// Action is something an agent recently did.
type Action struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (a *Action) clonePayload() Payload { cp := *a; return &cp }

// InteractionRecord is a conversation message preserved in a customer profile.
type InteractionRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CustomerProfile is long-term knowledge about one customer.
type CustomerProfile struct {
	CustomerID   string              `json:"customer_id,omitempty"`
	Email        string              `json:"email,omitempty"`
	Name         string              `json:"name,omitempty"`
	Segment      string              `json:"segment,omitempty"`
	Channel      string              `json:"channel,omitempty"`
	Priority     int                 `json:"priority,omitempty"`
	Interactions []InteractionRecord `json:"interactions,omitempty"`
	PromotedFrom string              `json:"promoted_from,omitempty"`
}

func (p *CustomerProfile) clonePayload() Payload {
	cp := *p
	cp.Interactions = slices.Clone(p.Interactions)
	return &cp
}

// Campaign is a past or running marketing campaign.
type Campaign struct {
	CampaignID string  `json:"campaign_id"`
	Name       string  `json:"name,omitempty"`
	Type       string  `json:"type,omitempty"`
	Channel    string  `json:"channel,omitempty"`
	Status     string  `json:"status,omitempty"`
	Budget     float64 `json:"budget,omitempty"`
}

func (c *Campaign) clonePayload() Payload { cp := *c; return &cp }

// PerformanceMetric is one measured campaign metric.
type PerformanceMetric struct {
	CampaignID string  `json:"campaign_id,omitempty"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
}

func (m *PerformanceMetric) clonePayload() Payload { cp := *m; return &cp }

// LearningPattern summarizes repeated episodic outcomes.
type LearningPattern struct {
	Pattern      string    `json:"pattern"`
	Type         string    `json:"type,omitempty"`
	Confidence   float64   `json:"confidence"`
	SuccessRate  float64   `json:"success_rate"`
	Applications int       `json:"applications"`
	LastUsed     time.Time `json:"last_used"`
	Source       string    `json:"source,omitempty"`
}

func (p *LearningPattern) clonePayload() Payload { cp := *p; return &cp }

// Interaction is an episodic record of a customer touchpoint.
type Interaction struct {
	Type       string  `json:"type"`
	Outcome    string  `json:"outcome"`
	CustomerID string  `json:"customer_id,omitempty"`
	Channel    string  `json:"channel,omitempty"`
	Sentiment  float64 `json:"sentiment,omitempty"`
}

func (i *Interaction) clonePayload() Payload { cp := *i; return &cp }

// ProblemResolution records how an issue was handled.
type ProblemResolution struct {
	Problem    string `json:"problem"`
	Resolution string `json:"resolution,omitempty"`
	Resolved   bool   `json:"resolved"`
}

func (p *ProblemResolution) clonePayload() Payload { cp := *p; return &cp }

// DecisionOutcome records a decision and how it played out.
type DecisionOutcome struct {
	Decision   string  `json:"decision,omitempty"`
	ActionType string  `json:"action_type,omitempty"`
	Success    bool    `json:"success"`
	Impact     float64 `json:"impact"`
}

func (d *DecisionOutcome) clonePayload() Payload { cp := *d; return &cp }

// key groups decisions by name, falling back to the action type.
func (d *DecisionOutcome) key() string {
	if d.Decision != "" {
		return d.Decision
	}
	return d.ActionType
}

// TimeSpan bounds a set of compressed records.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ContextualLearning is an episodic insight; compression emits them as
// summaries of repetitive interactions.
type ContextualLearning struct {
	Pattern          string    `json:"pattern"`
	Concept          string    `json:"concept,omitempty"`
	Description      string    `json:"description,omitempty"`
	Confidence       float64   `json:"confidence"`
	Frequency        int       `json:"frequency,omitempty"`
	AverageSentiment float64   `json:"average_sentiment,omitempty"`
	TimeSpan         *TimeSpan `json:"time_span,omitempty"`
}

func (c *ContextualLearning) clonePayload() Payload {
	cp := *c
	if c.TimeSpan != nil {
		ts := *c.TimeSpan
		cp.TimeSpan = &ts
	}
	return &cp
}

// concept names the semantic node this learning feeds.
func (c *ContextualLearning) concept() string {
	if c.Concept != "" {
		return c.Concept
	}
	return c.Pattern
}

// KnowledgeNode is a semantic concept with a confidence in [0,1].
type KnowledgeNode struct {
	ID            string     `json:"id"`
	Concept       string     `json:"concept"`
	Description   string     `json:"description"`
	Relationships []string   `json:"relationships"`
	Confidence    float64    `json:"confidence"`
	LastUpdated   time.Time  `json:"last_updated"`
	Extra         Attributes `json:"extra,omitempty"`
}

func (n *KnowledgeNode) clonePayload() Payload {
	cp := *n
	cp.Relationships = slices.Clone(n.Relationships)
	cp.Extra = maps.Clone(n.Extra)
	return &cp
}

func (n *KnowledgeNode) setExtra(a Attributes) { n.Extra = a }

// RelationType classifies a semantic relationship.
type RelationType string

const (
	RelationRelatedTo RelationType = "related_to"
	RelationPartOf    RelationType = "part_of"
	RelationCauses    RelationType = "causes"
	RelationOpposes   RelationType = "opposes"
)

// Relationship links two knowledge nodes by id.
type Relationship struct {
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Type     RelationType `json:"type"`
	Strength float64      `json:"strength"`
	Extra    Attributes   `json:"extra,omitempty"`
}

func (r *Relationship) clonePayload() Payload {
	cp := *r
	cp.Extra = maps.Clone(r.Extra)
	return &cp
}

func (r *Relationship) setExtra(a Attributes) { r.Extra = a }

// connects reports whether r joins a and b in either direction.
func (r *Relationship) connects(a, b string) bool {
	return (r.Source == a && r.Target == b) || (r.Source == b && r.Target == a)
}

// Concept is a named domain term.
type Concept struct {
	Name       string            `json:"name"`
	Definition string            `json:"definition,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (c *Concept) clonePayload() Payload {
	cp := *c
	cp.Attributes = maps.Clone(c.Attributes)
	return &cp
}

// Rule is a condition/action pair used by agent logic.
type Rule struct {
	Name      string `json:"name,omitempty"`
	Condition string `json:"condition"`
	Action    string `json:"action"`
	Priority  int    `json:"priority,omitempty"`
}

func (r *Rule) clonePayload() Payload { cp := *r; return &cp }

// Stats counts the items held in each tier.
type Stats struct {
	ShortTermItems int `json:"shortTermItems"`
	LongTermItems  int `json:"longTermItems"`
	EpisodicItems  int `json:"episodicItems"`
	SemanticItems  int `json:"semanticItems"`
}

// Total sums all tiers.
func (s Stats) Total() int {
	return s.ShortTermItems + s.LongTermItems + s.EpisodicItems + s.SemanticItems
}
