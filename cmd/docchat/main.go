package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/extract"
	"docchat/internal/manifest"
	"docchat/internal/server"
	"docchat/internal/service"
	"docchat/internal/summarizer"
	"docchat/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "docchat",
		Short: "Retrieval-augmented document chat service",
	}
	root.AddCommand(serveCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cfg)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	return serve
}

func run(cfg *config.AppConfig) error {
	logger := log.New(log.Writer(), "[INGEST] ", log.LstdFlags)

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	sum, err := buildSummarizer(cfg)
	if err != nil {
		return err
	}

	mf, err := manifest.Open(cfg.Storage.ManifestPath)
	if err != nil {
		return err
	}

	svc, err := service.New(service.Options{
		Chunker:      chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences),
		Embedder:     emb,
		Store:        store,
		Summarizer:   sum,
		Extractor:    extract.NewPDFExtractor(logger),
		Manifest:     mf,
		UploadDir:    cfg.Storage.UploadDir,
		ProcessedDir: cfg.Storage.ProcessedDir,
		TopK:         cfg.Retrieval.TopK,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Printf("close service: %v", err)
		}
	}()

	srv := server.New(cfg.Server, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		return embedding.NewHashingEmbedder(cfg.Embedder.Dimension)
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.EmbeddingModel,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "vecgo", "":
		return vectorstore.OpenVecgo(cfg.Storage.SnapshotPath)
	case "memory":
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxSentences), nil
	case "openai":
		return summarizer.NewOpenAISummarizer(summarizer.OpenAIConfig{
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.ChatModel,
		})
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}
