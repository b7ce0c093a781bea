package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/exsmiley/langread/agent"
	"github.com/exsmiley/langread/api"
	"github.com/exsmiley/langread/bulkops"
	"github.com/exsmiley/langread/cache"
	"github.com/exsmiley/langread/config"
	"github.com/exsmiley/langread/discovery"
	"github.com/exsmiley/langread/extract"
	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/synthesis"
	"github.com/exsmiley/langread/tags"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	var completer llm.Completer
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model := config.GetEnvOrDefault("OPENAI_MODEL", config.DefaultModel)
		completer = llm.NewOpenAI(apiKey, model)
		log.Printf("Using completion model %s", model)
	} else {
		log.Println("OPENAI_API_KEY not set; running with deterministic fallbacks only")
	}

	var secondary discovery.Searcher
	if apiKey, cseID := os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_CSE_ID"); apiKey != "" && cseID != "" {
		secondary = discovery.NewGoogleSearch(apiKey, cseID)
	} else {
		log.Println("Google search credentials not set; discovery uses feeds only")
	}

	ctx := context.Background()
	var articleStore store.ArticleStore
	var tagStore store.TagStore
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		m, err := store.NewMongo(ctx, uri, config.GetEnvOrDefault("MONGODB_DATABASE", "langread"))
		if err != nil {
			log.Fatalf("Could not connect to MongoDB: %v", err)
		}
		defer m.Close(context.Background())
		articleStore, tagStore = m, m
	} else {
		mem := store.NewMemory()
		articleStore, tagStore = mem, mem
		log.Println("MONGODB_URI not set; using in-memory storage")
	}

	resultCache, err := cache.New(config.GetEnvOrDefault("CACHE_DIR", ".cache/articles"))
	if err != nil {
		log.Fatalf("Could not open cache: %v", err)
	}

	scanner := discovery.NewScanner(completer, secondary)
	extractor := extract.NewExtractor(completer)
	synthesizer := synthesis.NewSynthesizer(completer)
	tagService := tags.NewService(tagStore, completer)

	opStore := bulkops.NewMemoryStore()
	runner := bulkops.NewRunner(scanner, extractor, synthesizer, tagService, articleStore, opStore)
	articleAgent := agent.New(scanner, extractor, synthesizer, tagService, articleStore, resultCache, completer)

	server := api.NewServer(articleAgent, runner, opStore, tagService, resultCache, articleStore)
	addr := ":" + config.GetEnvOrDefault("PORT", "8080")
	if err := server.Run(addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
