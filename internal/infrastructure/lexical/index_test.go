package lexical

import (
	"testing"

	"github.com/clinicore/medrag/internal/core/domain"
)

func buildTestIndex(docs []domain.CorpusDocument) *Index {
	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		tokenized[i] = Tokenize(doc.Content)
	}
	return BuildIndex(docs, tokenized)
}

func TestIndexSearchMatchesUnsegmentedQuery(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Name: "感冒", Content: "感冒 发热 咳嗽 流涕"},
		{ID: "2", Name: "胃炎", Content: "胃痛 恶心 呕吐"},
	})

	items := idx.Search("我发热了", 10)
	if len(items) != 1 {
		t.Fatalf("expected exactly the matching document, got %d items", len(items))
	}
	if items[0].Origin != domain.OriginLexical {
		t.Fatalf("unexpected origin %s", items[0].Origin)
	}
	if items[0].Content != "【感冒】\n感冒 发热 咳嗽 流涕" {
		t.Fatalf("unexpected content %q", items[0].Content)
	}
	if items[0].Score == nil || *items[0].Score <= 0 {
		t.Fatalf("matching document must have a strictly positive score")
	}
}

func TestIndexSearchExcludesZeroScores(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Content: "高血压 头晕"},
		{ID: "2", Content: "糖尿病 口渴"},
	})

	items := idx.Search("骨折", 10)
	if len(items) != 0 {
		t.Fatalf("non-matching query must return nothing, got %v", items)
	}
}

func TestIndexSearchRanksHigherTermFrequencyFirst(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Content: "发热"},
		{ID: "2", Content: "发热 发热 发热"},
	})

	items := idx.Search("发热", 10)
	if len(items) != 2 {
		t.Fatalf("expected both documents, got %d", len(items))
	}
	if *items[0].Score <= *items[1].Score {
		t.Fatalf("repeated term should score higher: %v vs %v", *items[0].Score, *items[1].Score)
	}
}

func TestIndexSearchTiesKeepCorpusOrder(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Name: "a", Content: "咳嗽"},
		{ID: "2", Name: "b", Content: "咳嗽"},
		{ID: "3", Name: "c", Content: "咳嗽"},
	})

	items := idx.Search("咳嗽", 10)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, name := range []string{"a", "b", "c"} {
		if items[i].Metadata["name"] != name {
			t.Fatalf("tie order not stable at position %d: %v", i, items[i].Metadata)
		}
	}
}

func TestIndexSearchRespectsTopK(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Content: "咳嗽 发热"},
		{ID: "2", Content: "咳嗽"},
		{ID: "3", Content: "咳嗽 痰多"},
	})

	items := idx.Search("咳嗽", 2)
	if len(items) != 2 {
		t.Fatalf("expected topK=2 items, got %d", len(items))
	}
}

func TestIndexSearchEmptyQueryAndZeroTopK(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{{ID: "1", Content: "发热"}})

	if items := idx.Search("", 5); items != nil {
		t.Fatalf("empty query must return nil, got %v", items)
	}
	if items := idx.Search("发热", 0); items != nil {
		t.Fatalf("zero topK must return nil, got %v", items)
	}
}

func TestBuildIndexLen(t *testing.T) {
	idx := buildTestIndex([]domain.CorpusDocument{
		{ID: "1", Content: "发热"},
		{ID: "2", Content: "咳嗽"},
	})
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}
}
