package config

import "testing"

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("TOP_K_RETRIEVAL", "")
	t.Setenv("TOP_K_RERANK", "")
	t.Setenv("SIMILARITY_THRESHOLD", "")
	t.Setenv("CONFIDENCE_THRESHOLD", "")

	cfg := Load()
	if cfg.TopKRetrieval != 10 {
		t.Fatalf("expected default retrieval top k 10, got %d", cfg.TopKRetrieval)
	}
	if cfg.TopKRerank != 3 {
		t.Fatalf("expected default rerank top k 3, got %d", cfg.TopKRerank)
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Fatalf("expected default similarity threshold 0.7, got %v", cfg.SimilarityThreshold)
	}
	if cfg.ConfidenceThreshold != 0.5 {
		t.Fatalf("expected default confidence threshold 0.5, got %v", cfg.ConfidenceThreshold)
	}
}

func TestLoadParsesRetrievalOverrides(t *testing.T) {
	t.Setenv("TOP_K_RETRIEVAL", "20")
	t.Setenv("TOP_K_RERANK", "5")
	t.Setenv("SIMILARITY_THRESHOLD", "0.6")
	t.Setenv("QUERY_REWRITE_ENABLED", "false")

	cfg := Load()
	if cfg.TopKRetrieval != 20 {
		t.Fatalf("expected retrieval top k 20, got %d", cfg.TopKRetrieval)
	}
	if cfg.TopKRerank != 5 {
		t.Fatalf("expected rerank top k 5, got %d", cfg.TopKRerank)
	}
	if cfg.SimilarityThreshold != 0.6 {
		t.Fatalf("expected similarity threshold 0.6, got %v", cfg.SimilarityThreshold)
	}
	if cfg.RewriteEnabled {
		t.Fatalf("expected rewrite disabled")
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("LEXICAL_BATCH_SIZE", "not-a-number")
	t.Setenv("SIMILARITY_THRESHOLD", "high")

	cfg := Load()
	if cfg.LexicalBatchSize != 2000 {
		t.Fatalf("expected fallback batch size 2000, got %d", cfg.LexicalBatchSize)
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Fatalf("expected fallback similarity threshold 0.7, got %v", cfg.SimilarityThreshold)
	}
}
