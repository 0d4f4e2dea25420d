// README: Terminal chat against the dialogue stack with in-memory stores; set GEMINI_API_KEY to try rephrasing.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"novobot/internal/ai"
	"novobot/internal/config"
	"novobot/internal/modules/booking"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/response"
	"novobot/internal/modules/session"
	"novobot/internal/modules/transcript"
	"novobot/internal/modules/validation"
	"novobot/internal/service"
)

func main() {
	cfg := config.Defaults()
	logger := zap.NewNop()
	ctx := context.Background()

	deps := service.Deps{
		Sessions:    session.NewMemoryStore(),
		Validator:   validation.NewService(cfg.Validation, nil, logger),
		Pricing:     pricing.NewService(cfg.Tariff, nil, logger),
		Composer:    response.NewComposer(cfg.Tariff, cfg.Validation),
		Preferences: preference.NewService(preference.NewMemoryStore(), cfg.Memory, logger),
		Bookings:    booking.NewService(booking.NewMemoryStore(), logger),
		Transcript:  transcript.NewMemoryStore(),
		Log:         logger,
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		rephraser, err := ai.NewGeminiRephraser(ctx, apiKey)
		if err != nil {
			log.Fatalf("Failed to initialize rephraser: %v", err)
		}
		defer rephraser.Close()
		deps.Rephraser = rephraser
	}
	assistant := service.NewAssistant(deps)

	phone := "5493456000000"
	if len(os.Args) > 1 {
		phone = os.Args[1]
	}
	fmt.Printf("Chatting as %s. Ctrl-D to exit.\n", phone)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		out, err := assistant.HandleTurn(ctx, service.TurnInput{Phone: phone, Text: text})
		if err != nil {
			log.Fatalf("turn: %v", err)
		}
		fmt.Printf("%s\n[state=%s intent=%s]\n", out.Reply, out.State, out.Intent.Kind)
		if out.BookingID != "" {
			fmt.Printf("[booking %s]\n", out.BookingID)
		}
	}
}
