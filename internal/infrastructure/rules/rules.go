// Package rules loads the keyword-category table and the synonym
// normalization table from YAML. Both are data, not code: curating a keyword
// never touches retrieval logic.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clinicore/medrag/internal/core/domain"
)

type file struct {
	Categories []domain.RuleCategory `yaml:"categories"`
	Synonyms   []domain.SynonymEntry `yaml:"synonyms"`
}

// Load reads both tables from one YAML file. An empty path yields the
// compiled-in defaults.
func Load(path string) (domain.RuleTable, domain.SynonymTable, error) {
	if path == "" {
		return DefaultRuleTable(), DefaultSynonymTable(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleTable{}, nil, fmt.Errorf("read rules file: %w", err)
	}

	var parsed file
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return domain.RuleTable{}, nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(parsed.Categories) == 0 {
		return domain.RuleTable{}, nil, fmt.Errorf("rules file %s declares no categories", path)
	}
	for _, cat := range parsed.Categories {
		if cat.Name == "" {
			return domain.RuleTable{}, nil, fmt.Errorf("rules file %s contains a category without a name", path)
		}
	}
	return domain.RuleTable{Categories: parsed.Categories}, parsed.Synonyms, nil
}

// DefaultRuleTable is the built-in medical keyword table. Scan order is
// significant: the first category with a hit wins the signal.
func DefaultRuleTable() domain.RuleTable {
	return domain.RuleTable{Categories: []domain.RuleCategory{
		{Name: "symptom", Keywords: []string{"发热", "发烧", "咳嗽", "头痛", "腹痛", "恶心", "呕吐", "腹泻", "乏力"}},
		{Name: "disease", Keywords: []string{"感冒", "流感", "肺炎", "胃炎", "高血压", "糖尿病", "冠心病"}},
		{Name: "medication", Keywords: []string{"阿司匹林", "布洛芬", "对乙酰氨基酚", "抗生素", "降压药"}},
		{Name: "diagnostic", Keywords: []string{"血常规", "尿常规", "CT", "核磁共振", "B超", "X光"}},
		{Name: domain.EmergencyCategory, Keywords: []string{"急救", "中毒", "骨折", "出血", "休克", "昏迷"}},
	}}
}

// DefaultSynonymTable maps colloquial phrasings onto the standard terms used
// by the knowledge base. Standard terms are never table keys themselves, so
// normalization is idempotent.
func DefaultSynonymTable() domain.SynonymTable {
	return domain.SynonymTable{
		{Colloquial: "脑袋疼", Standard: "头痛"},
		{Colloquial: "脑袋痛", Standard: "头痛"},
		{Colloquial: "头疼", Standard: "头痛"},
		{Colloquial: "高烧", Standard: "发热"},
		{Colloquial: "低烧", Standard: "低热"},
		{Colloquial: "发烧", Standard: "发热"},
		{Colloquial: "肚子疼", Standard: "腹痛"},
		{Colloquial: "肚子痛", Standard: "腹痛"},
		{Colloquial: "胃疼", Standard: "胃痛"},
		{Colloquial: "拉肚子", Standard: "腹泻"},
		{Colloquial: "拉稀", Standard: "腹泻"},
		{Colloquial: "恶心想吐", Standard: "恶心 呕吐"},
		{Colloquial: "想吐", Standard: "恶心"},
		{Colloquial: "浑身没劲", Standard: "乏力"},
		{Colloquial: "没力气", Standard: "乏力"},
		{Colloquial: "流感", Standard: "流行性感冒"},
		{Colloquial: "消炎药", Standard: "抗生素"},
		{Colloquial: "退烧药", Standard: "解热镇痛药"},
		{Colloquial: "止痛药", Standard: "镇痛药"},
		{Colloquial: "降压药", Standard: "抗高血压药"},
	}
}
