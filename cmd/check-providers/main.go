// Smoke test for model backends: reports which providers are reachable with
// the current environment and asks each one for a single verdict.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ppiankov/headcheck/internal/invoke"
	"github.com/ppiankov/headcheck/internal/llm"
	"github.com/ppiankov/headcheck/internal/prompt"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("=== Provider Check ===")
	fmt.Println()

	headline := "Local council approves new park budget"
	if len(os.Args) > 1 {
		headline = strings.Join(os.Args[1:], " ")
	}

	// Default model per provider
	models := []string{"gpt-4o-mini", "claude-haiku-4-5", "gemini-2.5-flash", "llama3"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	failed := 0
	for _, name := range models {
		providerName := llm.ResolveProvider(name)
		fmt.Printf("%s (%s)\n", name, providerName)
		fmt.Println(strings.Repeat("-", 60))

		cfg := llm.DefaultConfig()
		cfg.Model = name
		if env := llm.APIKeyEnv(providerName); env != "" {
			cfg.APIKey = os.Getenv(env)
		} else {
			cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}

		provider, err := llm.NewProvider(cfg)
		if err != nil {
			fmt.Printf("  ✗ skipped: %v\n\n", err)
			continue
		}

		if !provider.IsAvailable(ctx) {
			fmt.Printf("  ✗ not reachable\n\n")
			failed++
			continue
		}
		fmt.Printf("  ✓ reachable (%s)\n", provider.Backend())

		verdict, reply, err := invoke.New(provider, invoke.WithMaxAttempts(3)).Verdict(ctx, headline, prompt.Baseline)
		if err != nil {
			fmt.Printf("  ✗ verdict failed: %v\n\n", err)
			failed++
			continue
		}
		fmt.Printf("  ✓ verdict: %s (%d attempt(s))\n\n", verdict, reply.Attempts)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
