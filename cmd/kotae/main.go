// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/completion"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys are commonly kept in a local .env during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask", "query":
		runAsk()
	case "watch":
		runWatch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "reprocess":
		runReprocess()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (per-stage query events, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		ing := components.Ingestor
		exts := cfg.Watch.Extensions
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			exts,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := ing.IngestFile(context.Background(), path, exts); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := ing.DeleteDocument(context.Background(), fileid.FileDocID(path)); err != nil {
					logger.Warn("watch delete by path failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Ingestor,
		components.Storage,
		components.VectorIndex,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runWatch runs the directory watcher without the HTTP server. Directories
// given as arguments override the configured watch list.
func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(askArgsReorder(os.Args[2:]))

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	dirs := cfg.Watch.Directories
	if fs.NArg() > 0 {
		dirs = fs.Args()
	}
	if len(dirs) == 0 {
		fmt.Println("No directories to watch: pass them as arguments or set watch.directories in the config")
		os.Exit(1)
	}

	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ing := components.Ingestor
	exts := cfg.Watch.Extensions
	w := watcher.New(
		dirs,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := ing.IngestFile(context.Background(), path, exts); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := ing.DeleteDocument(context.Background(), fileid.FileDocID(path)); err != nil {
				logger.Warn("watch delete by path failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	w.SyncExistingFiles()
	logger.Info("watching", zap.Strings("directories", dirs))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	w.Stop()
}

// askArgsReorder moves any flags (and their values) that appear after the
// question to the front of the slice so that flag.Parse() sees them. Go's
// flag package stops at the first non-flag argument.
func askArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	askArgs := askArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the pipeline locally)")
	topK := fs.Int("top-k", 0, "number of evidence chunks to retrieve (0 = config default)")
	minScore := fs.Float64("min-score", 0, "minimum relevance score (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(askArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: question, TopK: *topK, MinScore: *minScore}

	var result *models.QueryResult
	if *serverURL != "" {
		res, err := askViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		result, err = components.Pipeline.Answer(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printAnswer(result)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printAnswer(result *models.QueryResult) {
	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Printf("confidence: %s\n", result.Confidence)
	if result.InsufficientEvidence {
		fmt.Println("note: no relevant passages were found; the answer is not grounded in the corpus")
	}
	if len(result.SupportingClauses) > 0 {
		fmt.Println("\nsupporting clauses:")
		for _, c := range result.SupportingClauses {
			fmt.Printf("  - %s (document: %s, score: %.2f)\n", c.Text, c.DocumentID, c.ConfidenceScore)
		}
	}
	if result.Explanation != "" {
		fmt.Printf("\nexplanation: %s\n", result.Explanation)
	}
	if len(result.SupportingEvidence) > 0 {
		fmt.Println("\nevidence:")
		for _, ev := range result.SupportingEvidence {
			fmt.Printf("  [%.3f] %s: %s\n", ev.Score, ev.ChunkID, utils.Truncate(ev.Text, 120))
		}
	}
}

func askViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		exts := cfg.Watch.Extensions
		if exts == nil {
			exts = []string{".txt", ".md"}
		}
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("ingesting"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(os.Stderr),
		)
		n, err := components.Ingestor.IngestDirectory(ctx, path, exts, func(p string) {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		fmt.Println()
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	if _, err := components.Ingestor.IngestFile(ctx, path, nil); err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	absPath, _ := filepath.Abs(path)
	fmt.Printf("Document ingested: %s\n", fileid.FileDocID(absPath))
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Ingestor.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runReprocess() {
	fs := flag.NewFlagSet("reprocess", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae reprocess [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	n, err := components.Ingestor.ReprocessDocument(context.Background(), docID)
	if err != nil {
		fmt.Printf("Reprocess failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document reprocessed: %s (%d chunks)\n", docID, n)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents int64                  `json:"documents"`
	Chunks    int64                  `json:"chunks"`
	Vectors   int                    `json:"vectors"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		vecCount, err := components.VectorIndex.Count(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Vector count failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents: docCount,
			Chunks:    chunkCount,
			Vectors:   vecCount,
			Config: map[string]interface{}{
				"embedding_provider":   cfg.Embedding.Provider,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"completion_provider":  cfg.Completion.Provider,
				"vector_index_type":    cfg.Retrieval.IndexType,
				"database_path":        cfg.Storage.DatabasePath,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:  %d\n", status.Documents)
		fmt.Printf("chunks:     %d\n", status.Chunks)
		fmt.Printf("vectors:    %d\n", status.Vectors)
		if len(status.Config) > 0 {
			fmt.Println("\n# configuration")
			for _, key := range []string{"embedding_provider", "embedding_dimensions", "completion_provider", "vector_index_type", "database_path"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-21s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Pipeline    *pipeline.Pipeline
	Ingestor    *pipeline.Ingestor
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorIndex, err := vector.New(&cfg.Retrieval, cfg.Storage.VectorIndexPath, embedder.Dimensions())
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	completer, err := completion.NewService(&cfg.Completion)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		_ = vectorIndex.Close()
		return nil, fmt.Errorf("failed to initialize completion service: %w", err)
	}

	ch, err := chunker.New(chunker.Config{
		MaxChunkChars:    cfg.Chunking.MaxChunkChars,
		OverlapChars:     cfg.Chunking.OverlapChars,
		MinChunkChars:    cfg.Chunking.MinChunkChars,
		BoundaryLookback: cfg.Chunking.BoundaryLookback,
	})
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		_ = vectorIndex.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	retrOpts := []retriever.Option{}
	pipeOpts := []pipeline.Option{}
	ingOpts := []pipeline.IngestorOption{}
	if debug && logger != nil {
		retrOpts = append(retrOpts, retriever.WithLogger(logger))
		pipeOpts = append(pipeOpts, pipeline.WithLogger(logger))
		ingOpts = append(ingOpts, pipeline.WithIngestLogger(logger))
	}

	p := pipeline.New(embedder, retriever.New(vectorIndex, retrOpts...), completer, cfg, pipeOpts...)
	ing := pipeline.NewIngestor(store, embedder, vectorIndex, ch, ingOpts...)

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
		Pipeline:    p,
		Ingestor:    ing,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Document question answering over your own files

Usage:
  kotae server [flags]              Start the HTTP server
  kotae ask [flags] <question>      Ask a question against the corpus (alias: query)
  kotae ingest [flags] <path>       Ingest a file or directory
  kotae watch [flags] [dir...]      Watch directories and ingest changed files
  kotae delete [flags] <id>         Delete a document
  kotae reprocess [flags] <id>      Re-chunk and re-embed a document
  kotae status [flags]              Show corpus and index status
  kotae version                     Show version
  kotae help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (per-stage query events, file ingestion, etc.)

Ask Flags:
  --config string     Config file path (for local pipeline mode)
  --server string     Server URL (empty = run the pipeline locally)
  --top-k int         Number of evidence chunks to retrieve (0 = config default)
  --min-score float   Minimum relevance score (0 = config default)
  --output string     Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask "What is the grace period for premium payment?"
  kotae ask --top-k 8 --output json "Is knee surgery covered?"
  kotae ingest policies/
  kotae delete doc-123
  kotae status --output json`)
}
