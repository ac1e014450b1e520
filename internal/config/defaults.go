package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kotae/data/indices/vectors.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "mock"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Completion.MaxOutputTokens == 0 {
		cfg.Completion.MaxOutputTokens = 1024
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.1
	}
	if cfg.Completion.TimeoutSeconds == 0 {
		cfg.Completion.TimeoutSeconds = 60
	}
	if cfg.Chunking.MaxChunkChars == 0 {
		cfg.Chunking.MaxChunkChars = 1000
	}
	if cfg.Chunking.OverlapChars == 0 {
		cfg.Chunking.OverlapChars = 150
	}
	if cfg.Chunking.MinChunkChars == 0 {
		cfg.Chunking.MinChunkChars = 50
	}
	if cfg.Chunking.BoundaryLookback == 0 {
		cfg.Chunking.BoundaryLookback = 120
	}
	if cfg.Retrieval.IndexType == "" {
		cfg.Retrieval.IndexType = "memory"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.35
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = "kotae_chunks"
	}
	if cfg.Pipeline.QueryTimeoutSeconds == 0 {
		cfg.Pipeline.QueryTimeoutSeconds = 90
	}
	if cfg.Pipeline.PromptBudgetChars == 0 {
		cfg.Pipeline.PromptBudgetChars = 8000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
