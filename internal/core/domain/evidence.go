package domain

// Origin identifies the retrieval path that produced an evidence item.
type Origin string

const (
	OriginVector   Origin = "vector"
	OriginLexical  Origin = "lexical"
	OriginRule     Origin = "rule"
	OriginExternal Origin = "external"
)

// EvidenceItem is the unit exchanged between retrieval paths and the caller.
// Score is path-local: a vector similarity, a BM25 score, or nil for
// externally sourced items. Scores from different origins are not comparable.
type EvidenceItem struct {
	Origin   Origin            `json:"origin"`
	Content  string            `json:"content"`
	Score    *float64          `json:"score,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConfidenceDecision is the gate output for one request. Not persisted.
type ConfidenceDecision struct {
	NeedsAugmentation bool     `json:"needs_augmentation"`
	BestScore         *float64 `json:"best_score,omitempty"`
}

// CorpusDocument is one entry of the disease knowledge base as stored in the
// vector collection. Content is the primary text field; the remaining fields
// are auxiliary payload carried through as evidence metadata.
type CorpusDocument struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	Name            string `json:"name"`
	CategoryPrimary string `json:"category_primary"`
	Symptoms        string `json:"symptoms"`
	CureDepartment  string `json:"cure_department"`
	CureWay         string `json:"cure_way"`
	GetWay          string `json:"get_way"`
	CuredProb       string `json:"cured_prob"`
}

// DisplayContent renders the document the way evidence is shown to the
// answer model: disease name header plus body when a name is present.
func (d CorpusDocument) DisplayContent() string {
	if d.Name == "" {
		return d.Content
	}
	return "【" + d.Name + "】\n" + d.Content
}

// Metadata flattens the auxiliary fields for evidence provenance.
func (d CorpusDocument) Metadata() map[string]string {
	return map[string]string{
		"name":             d.Name,
		"category_primary": d.CategoryPrimary,
		"symptoms":         d.Symptoms,
		"cure_department":  d.CureDepartment,
		"cure_way":         d.CureWay,
		"get_way":          d.GetWay,
		"cured_prob":       d.CuredProb,
	}
}

// VectorHit is a raw nearest-neighbor result. Distance is the store's native
// metric (L2); the vector path converts it to a bounded similarity.
type VectorHit struct {
	Distance float64
	Document CorpusDocument
}

// Float64Ptr is a convenience for optional scores.
func Float64Ptr(v float64) *float64 {
	return &v
}
