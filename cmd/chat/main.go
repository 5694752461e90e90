// Interactive chat memory demo.
//
// Holds a conversation in the tiered memory manager: turns land in the recent
// window, get promoted into summaries, and facts stored with /remember go to
// the long-term knowledge store. Each turn prints the context the manager
// would hand to an LLM.
//
// Examples:
//
//	go run ./cmd/chat
//	go run ./cmd/chat -backend qdrant -qdrant-url http://localhost:6333
//	go run ./cmd/chat -provider openai -model gpt-4o-mini
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ctxmem/ctxmem/src/memory"
	"github.com/ctxmem/ctxmem/src/memory/embed"
	"github.com/ctxmem/ctxmem/src/memory/hybrid"
	"github.com/ctxmem/ctxmem/src/memory/model"
	"github.com/ctxmem/ctxmem/src/memory/store"
	"github.com/ctxmem/ctxmem/src/memory/summarize"
	"github.com/ctxmem/ctxmem/src/models"
)

var (
	flagProvider = flag.String("provider", "dummy", "Summarizer LLM provider: openai|gemini|anthropic|ollama|dummy")
	flagModel    = flag.String("model", "", "Model ID for the selected provider")
	flagBackend  = flag.String("backend", "memory", "Vector backend: memory|qdrant|postgres|mongo")
	flagStrategy = flag.String("strategy", "parallel", "Knowledge query strategy: vector_first|graph_first|parallel|vector_only|graph_only")

	qdrantURL        = flag.String("qdrant-url", "http://localhost:6333", "Qdrant base URL")
	qdrantCollection = flag.String("qdrant-collection", "ctxmem_knowledge", "Qdrant collection name")
	postgresDSN      = flag.String("postgres-dsn", "", "Postgres connection string (pgvector)")
	mongoURI         = flag.String("mongo-uri", "", "MongoDB connection URI")
	mongoDatabase    = flag.String("mongo-db", "ctxmem", "MongoDB database name")

	flagTimeout = flag.Duration("timeout", 30*time.Second, "Per-command timeout")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "chat: ", log.LstdFlags)

	ctx := context.Background()
	embedder := embed.AutoEmbedder()

	index, err := newVectorIndex(ctx)
	if err != nil {
		logger.Fatalf("vector backend: %v", err)
	}
	longterm, err := hybrid.NewHybridStore(index, store.NewMemoryGraph(), embedder)
	if err != nil {
		logger.Fatalf("long-term store: %v", err)
	}

	summarizer, err := newSummarizer(ctx)
	if err != nil {
		logger.Fatalf("summarizer: %v", err)
	}

	opts := memory.OptionsFromEnv()
	opts.QueryStrategy = *flagStrategy
	manager, err := memory.NewManager(opts, longterm, embedder, summarizer)
	if err != nil {
		logger.Fatalf("memory manager: %v", err)
	}

	fmt.Println("ctxmem chat demo. Commands: /remember <fact>, /stats, /clear, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	role := model.RoleUser
	for {
		fmt.Printf("%s> ", role)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, *flagTimeout)
		done := runCommand(cctx, manager, role, line)
		cancel()
		if done {
			break
		}
		if !strings.HasPrefix(line, "/") {
			if role == model.RoleUser {
				role = model.RoleAssistant
			} else {
				role = model.RoleUser
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read input: %v", err)
	}
}

// runCommand handles one input line and reports whether the loop should end.
func runCommand(ctx context.Context, manager *memory.Manager, role model.Role, line string) bool {
	switch {
	case line == "/quit":
		return true
	case line == "/stats":
		stats := manager.Stats(ctx)
		fmt.Printf("recent=%d chunks=%d knowledge=%d counter=%d\n",
			stats.RecentMessages, stats.SummaryChunks, stats.KnowledgeCount, stats.MessageCounter)
	case line == "/clear":
		if err := manager.ClearAll(ctx); err != nil {
			fmt.Printf("clear failed: %v\n", err)
		} else {
			fmt.Println("cleared")
		}
	case strings.HasPrefix(line, "/remember "):
		fact := strings.TrimSpace(strings.TrimPrefix(line, "/remember "))
		ref, err := manager.Remember(ctx, fact, map[string]any{"category": "user_fact"})
		if err != nil {
			fmt.Printf("remember failed: %v\n", err)
		} else {
			fmt.Printf("stored %s / %s\n", ref.VectorID, ref.EntityID)
		}
	default:
		if err := manager.AddMessage(ctx, role, line, nil); err != nil {
			fmt.Printf("add failed: %v\n", err)
			return false
		}
		res := manager.GetContext(ctx, memory.ContextRequest{
			Query:              line,
			UseKnowledge:       true,
			UseEmbeddingSearch: true,
		})
		fmt.Printf("--- context (%d tokens, %d kept / %d removed) ---\n",
			res.Compressed.Tokens, res.Compressed.Kept, res.Compressed.Removed)
		if res.Prompt != "" {
			fmt.Println(res.Prompt)
		}
		fmt.Println("---")
	}
	return false
}

func newVectorIndex(ctx context.Context) (store.VectorIndex, error) {
	switch *flagBackend {
	case "memory", "":
		return store.NewInMemoryIndex(), nil
	case "qdrant":
		index, err := store.NewQdrantIndex(*qdrantURL, *qdrantCollection, 768)
		if err != nil {
			return nil, err
		}
		if err := index.CreateSchema(ctx); err != nil {
			return nil, err
		}
		return index, nil
	case "postgres":
		if *postgresDSN == "" {
			return nil, fmt.Errorf("-postgres-dsn is required for the postgres backend")
		}
		index, err := store.NewPostgresIndex(ctx, *postgresDSN)
		if err != nil {
			return nil, err
		}
		if err := index.CreateSchema(ctx); err != nil {
			return nil, err
		}
		return index, nil
	case "mongo":
		if *mongoURI == "" {
			return nil, fmt.Errorf("-mongo-uri is required for the mongo backend")
		}
		return store.NewMongoIndex(ctx, *mongoURI, *mongoDatabase, "knowledge")
	}
	return nil, fmt.Errorf("unknown backend %q", *flagBackend)
}

func newSummarizer(ctx context.Context) (summarize.Summarizer, error) {
	if *flagProvider == "" || *flagProvider == "heuristic" {
		return summarize.HeuristicSummarizer{}, nil
	}
	m, err := models.NewProvider(ctx, *flagProvider, *flagModel, "")
	if err != nil {
		return nil, err
	}
	return summarize.NewModelSummarizer(models.TryCreateCachedModel(m))
}
