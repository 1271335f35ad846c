package domain

// EmergencyCategory is the rule category that flags an emergency consult.
const EmergencyCategory = "emergency"

// RuleCategory maps one category to its literal trigger keywords.
type RuleCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// RuleTable is the ordered keyword-to-category table scanned by the rule
// path. Scan order is the declared order; the first category with a
// substring hit wins.
type RuleTable struct {
	Categories []RuleCategory `yaml:"categories"`
}

// SynonymEntry rewrites one colloquial phrase to its standard medical term.
type SynonymEntry struct {
	Colloquial string `yaml:"colloquial"`
	Standard   string `yaml:"standard"`
}

// SynonymTable is the curated colloquial-to-standard substitution list used
// by query normalization. Entries must not produce overlap ambiguity;
// replacement applies them in declared order.
type SynonymTable []SynonymEntry

// RuleSignal is the rule path's output: the first matched category (empty
// when none fired) and whether any emergency keyword was present regardless
// of which category won.
type RuleSignal struct {
	Category  string `json:"category,omitempty"`
	Emergency bool   `json:"emergency,omitempty"`
}
