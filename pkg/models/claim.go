package models

import "time"

// Claim is a proposition extracted from a primary-source fragment by the
// LLM collaborator. Never created from non-primary sources (spec.md §3,
// invariant 8 in §8).
type Claim struct {
	ID         string
	TaskID     string
	Text       string
	Confidence float64 // LLM-reported, accepted verbatim (§9 design note)
	SourceURL  string
	CreatedAt  time.Time
}

// NLILabel is the sanitized stance returned by the NLI collaborator.
type NLILabel string

const (
	NLISupports NLILabel = "supports"
	NLIRefutes  NLILabel = "refutes"
	NLINeutral  NLILabel = "neutral"
)

// SanitizeNLILabel maps an arbitrary NLI collaborator response onto the
// three known labels, defaulting anything else to neutral (spec.md §4.4).
func SanitizeNLILabel(raw string) NLILabel {
	switch NLILabel(raw) {
	case NLISupports:
		return NLISupports
	case NLIRefutes:
		return NLIRefutes
	default:
		return NLINeutral
	}
}

// EdgeRelation is the typed relation of an evidence-graph Edge.
type EdgeRelation string

const (
	RelationSupports EdgeRelation = "supports"
	RelationRefutes  EdgeRelation = "refutes"
	RelationNeutral  EdgeRelation = "neutral"
	RelationCites    EdgeRelation = "cites"
)

// NodeType tags one side of a typed-id edge endpoint (arena-plus-typed-id
// representation, per spec.md §9 design note — no owned back-references).
type NodeType string

const (
	NodeClaim    NodeType = "claim"
	NodeFragment NodeType = "fragment"
	NodePage     NodeType = "page"
)

// Edge is a typed relation between two nodes of the evidence graph. Its
// NLI confidence is the source of truth for Confidence (spec.md §3).
type Edge struct {
	ID string

	SourceType NodeType
	SourceID   string
	TargetType NodeType
	TargetID   string

	Relation EdgeRelation
	// Confidence is always set equal to NLIConfidence (legacy alias kept
	// because downstream consumers still read it directly).
	Confidence    float64
	NLILabel      NLILabel
	NLIConfidence float64

	SourceDomainCategory string
	TargetDomainCategory string
}
