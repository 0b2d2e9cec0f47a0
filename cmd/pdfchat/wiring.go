package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdfchat/internal/chat"
	"pdfchat/internal/chunker"
	"pdfchat/internal/config"
	"pdfchat/internal/embedding"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/extract"
	"pdfchat/internal/indexer"
	"pdfchat/internal/session"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/vectorstore/chromem"
	"pdfchat/internal/vectorstore/memory"
	"pdfchat/internal/vectorstore/pgvector"
	"pdfchat/internal/vectorstore/qdrant"
)

func sessionOptions(cfg *config.AppConfig) session.Options {
	return session.Options{
		TopK:             cfg.Retrieval.TopK,
		CondenseQuestion: cfg.Retrieval.CondenseQuestion,
		HistoryWindow:    cfg.Retrieval.HistoryWindow,
		SummarySentences: cfg.Summary.MaxSentences,
	}
}

// buildDeps assembles the collaborators selected by cfg. The returned
// cleanup releases backend connections.
func buildDeps(ctx context.Context, cfg *config.AppConfig) (session.Deps, func(), error) {
	noop := func() {}
	creds, err := cfg.Credentials()
	if err != nil {
		return session.Deps{}, noop, err
	}

	ch, err := chunker.New(chunker.Config{
		Separator:    cfg.Chunker.Separator,
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	if err != nil {
		return session.Deps{}, noop, err
	}

	var emb embeddings.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		emb, err = embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   cfg.Embedder.BaseURL,
			APIKey:    creds.EmbedderKey,
			Model:     cfg.Embedder.Model,
			BatchSize: cfg.Embedder.BatchSize,
		})
	case "ollama":
		emb, err = embedding.NewOllama(embedding.OllamaConfig{
			ServerURL: cfg.Embedder.BaseURL,
			Model:     cfg.Embedder.Model,
			BatchSize: cfg.Embedder.BatchSize,
		})
	default:
		err = fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	if err != nil {
		return session.Deps{}, noop, err
	}
	// The TF-IDF space changes with every corpus, so only remote embedders
	// get a query cache.
	if cfg.Embedder.Type != "tfidf" && cfg.Embedder.CacheSize > 0 {
		if emb, err = embedding.NewCached(emb, cfg.Embedder.CacheSize); err != nil {
			return session.Deps{}, noop, err
		}
	}

	var model chat.Model
	opts := chat.Options{Temperature: cfg.Chat.Temperature, MaxTokens: cfg.Chat.MaxTokens}
	switch cfg.Chat.Type {
	case "openai":
		model, err = chat.NewOpenAI(chat.OpenAIConfig{
			BaseURL: cfg.Chat.BaseURL,
			APIKey:  creds.ChatKey,
			Model:   cfg.Chat.Model,
			Options: opts,
		})
	case "ollama":
		model, err = chat.NewOllama(chat.OllamaConfig{
			ServerURL: cfg.Chat.BaseURL,
			Model:     cfg.Chat.Model,
			Options:   opts,
		})
	case "anthropic":
		model = chat.NewAnthropic(chat.AnthropicConfig{
			BaseURL: cfg.Chat.BaseURL,
			APIKey:  creds.ChatKey,
			Model:   cfg.Chat.Model,
			Options: opts,
		})
	default:
		err = fmt.Errorf("unknown chat model: %s", cfg.Chat.Type)
	}
	if err != nil {
		return session.Deps{}, noop, err
	}

	var backend vectorstore.Backend
	cleanup := noop
	switch cfg.Index.Type {
	case "chromem":
		concurrency := 0
		if cfg.Index.Chromem != nil {
			concurrency = cfg.Index.Chromem.Concurrency
		}
		backend = chromem.NewBackend(concurrency)
	case "memory":
		backend = memory.NewBackend()
	case "qdrant":
		q := cfg.Index.Qdrant
		backend = qdrant.NewBackend(qdrant.Config{
			URL:     q.URL,
			APIKey:  creds.QdrantKey,
			Prefix:  q.Prefix,
			Timeout: time.Duration(q.TimeoutSecs) * time.Second,
		})
	case "pgvector":
		pg, err := pgvector.Open(ctx, pgvector.Config{DSN: cfg.Index.Pgvector.DSN, Debug: cfg.Index.Pgvector.Debug})
		if err != nil {
			return session.Deps{}, noop, fmt.Errorf("open pgvector: %w", err)
		}
		backend = pg
		cleanup = func() {
			if err := pg.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}
	default:
		return session.Deps{}, noop, fmt.Errorf("unknown index: %s", cfg.Index.Type)
	}

	log.Info().
		Str("embedder", cfg.Embedder.Type).
		Str("chat", cfg.Chat.Type+"/"+cfg.Chat.Model).
		Str("index", cfg.Index.Type).
		Msg("Components assembled")

	return session.Deps{
		Extractor:  extract.New(),
		Chunker:    ch,
		Indexer:    indexer.New(emb, backend),
		Summarizer: summarizer.NewFrequency(),
		Chat:       model,
	}, cleanup, nil
}
