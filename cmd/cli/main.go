package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"optimal-protocol-sync/internal/cache"
	"optimal-protocol-sync/internal/config"
	"optimal-protocol-sync/internal/engine"
	"optimal-protocol-sync/internal/model"
	"optimal-protocol-sync/internal/protocol"
	"optimal-protocol-sync/internal/remote"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" {
		printUsage()
		return
	}
	if command == "protocols" {
		handleProtocols()
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var client *remote.Client
	userID := getEnvDefault("USER_ID", "local")
	if !cfg.Offline() {
		client = remote.NewClient(cfg.RemoteURL, cfg.RemoteAPIKey)
		if userID == "local" {
			fmt.Fprintln(os.Stderr, "Error: USER_ID is required when a remote store is configured")
			os.Exit(1)
		}
	}

	eng := engine.New(client, store, &consoleNotifier{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := eng.Bootstrap(ctx, userID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Sync failed: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "ls":
		handleList(eng)
	case "add":
		handleAdd(ctx, eng)
	case "edit":
		handleEdit(ctx, eng)
	case "rm":
		handleRemove(ctx, eng)
	case "done":
		handleDone(ctx, eng)
	case "stats":
		handleStats(eng)
	case "streak":
		fmt.Printf("Current streak: %d day(s)\n", eng.Streak())
	case "protocol":
		handleProtocol(ctx, eng)
	case "hardcore":
		handleHardcore(ctx, eng)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`optimal-protocol-sync CLI - Habit Protocol Management

Usage:
  cli <command> [options]

Commands:
  ls                      List habits with today's completion and streaks
  add <title> [category]  Add a habit (training|nutrition|recovery|knowledge)
  edit <id> <title>       Rename a habit
  rm <id>                 Delete a habit
  done <id> [-force]      Toggle today's completion (-force to undo)
  stats                   Show category ratios and system integrity
  streak                  Show the current streak
  protocols               List the built-in starter protocols
  protocol <id>           Replace all habits with a starter protocol
  hardcore on|off         Toggle commitment mode
  help                    Show this help message

Examples:
  cli add "Cold Shower" recovery
  cli done 4f1c
  cli protocol spartan

Environment Variables:
  CACHE_PATH        - Local cache path (default: ./cache.db)
  REMOTE_URL        - Remote record store URL (unset = offline mode)
  REMOTE_ANON_KEY   - Remote API key (required with REMOTE_URL)
  USER_ID           - Account id (required with REMOTE_URL)`)
}

// consoleNotifier prints engine notifications the way the UI shows toasts.
type consoleNotifier struct{}

func (n *consoleNotifier) Info(title, detail string) {
	fmt.Printf("[%s] %s\n", title, detail)
}

func (n *consoleNotifier) Success(title, detail string) {
	fmt.Printf("✓ [%s] %s\n", title, detail)
}

func (n *consoleNotifier) Error(title, detail string) {
	fmt.Fprintf(os.Stderr, "✗ [%s] %s\n", title, detail)
}

func handleList(eng *engine.Engine) {
	habits := eng.Habits()
	if len(habits) == 0 {
		fmt.Println("No habits defined.")
		fmt.Println("\nTo start from a template, run: cli protocols")
		return
	}

	history := eng.History()
	today := eng.Today()

	fmt.Printf("Habits for %s:\n\n", today)
	for _, h := range habits {
		mark := " "
		if history.Completed(today, h.ID.Value) {
			mark = "x"
		}
		fmt.Printf("  [%s] %-24s %-10s streak:%-4d %s\n",
			mark, h.Title, h.Category, eng.HabitStreak(h.ID.Value), shortID(h.ID.Value))
	}

	fmt.Printf("\nStreak: %d day(s)   Integrity: %.0f%%\n", eng.Streak(), eng.Integrity()*100)
	if eng.AllDoneToday() {
		fmt.Println("All directives complete. SYSTEM OPTIMAL.")
	}
}

func handleAdd(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Title required")
		fmt.Fprintln(os.Stderr, "Usage: cli add <title> [category]")
		os.Exit(1)
	}

	category := model.CategoryTraining
	if len(os.Args) > 3 {
		category = model.ParseCategory(os.Args[3])
	}

	habit, err := eng.AddHabit(ctx, os.Args[2], category)
	if err != nil {
		exitEngineError(err)
	}

	fmt.Printf("✓ Added %q (%s) id:%s\n", habit.Title, habit.Category, shortID(habit.ID.Value))
}

func handleEdit(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Error: Habit id and new title required")
		fmt.Fprintln(os.Stderr, "Usage: cli edit <id> <title>")
		os.Exit(1)
	}

	habit := resolveHabit(eng, os.Args[2])
	if err := eng.EditHabit(ctx, habit.ID.Value, os.Args[3]); err != nil {
		exitEngineError(err)
	}

	fmt.Printf("✓ Renamed to %q\n", os.Args[3])
}

func handleRemove(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Habit id required")
		fmt.Fprintln(os.Stderr, "Usage: cli rm <id>")
		os.Exit(1)
	}

	habit := resolveHabit(eng, os.Args[2])
	if err := eng.DeleteHabit(ctx, habit.ID.Value); err != nil {
		exitEngineError(err)
	}

	fmt.Printf("✓ Deleted %q\n", habit.Title)
}

func handleDone(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Habit id required")
		fmt.Fprintln(os.Stderr, "Usage: cli done <id> [-force]")
		os.Exit(1)
	}

	force := len(os.Args) > 3 && os.Args[3] == "-force"
	habit := resolveHabit(eng, os.Args[2])
	today := eng.Today()

	// Undoing a day you already logged costs you the streak protection,
	// so it takes an explicit flag.
	if eng.History().Completed(today, habit.ID.Value) && !force {
		fmt.Fprintf(os.Stderr, "Error: %q is already logged for today\n", habit.Title)
		fmt.Fprintln(os.Stderr, "To undo it, run: cli done "+os.Args[2]+" -force")
		os.Exit(1)
	}

	completed, err := eng.ToggleCompletion(ctx, habit.ID.Value, today)
	if err != nil {
		exitEngineError(err)
	}

	if completed {
		fmt.Printf("✓ %q logged for %s\n", habit.Title, today)
		if eng.AllDoneToday() {
			fmt.Println("All directives complete. SYSTEM OPTIMAL.")
		}
	} else {
		fmt.Printf("✓ %q unlogged for %s\n", habit.Title, today)
	}
}

func handleStats(eng *engine.Engine) {
	ratios := eng.CategoryRatios()

	fmt.Println("System status:")
	for _, cat := range model.Categories() {
		fmt.Printf("  %-10s %3.0f%%\n", cat, ratios[cat]*100)
	}
	fmt.Printf("\nIntegrity: %.0f%%   Streak: %d day(s)\n", eng.Integrity()*100, eng.Streak())

	profile := eng.Profile()
	if profile.Status == model.StatusDead {
		fmt.Printf("\nSTATUS: DEAD (final streak: %d)\n", profile.Streak)
	}
}

func handleProtocols() {
	fmt.Println("Built-in protocols:")
	for _, tmpl := range protocol.All() {
		fmt.Printf("\n  %s — %s (%s)\n", tmpl.ID, tmpl.Name, tmpl.Subtitle)
		for _, h := range tmpl.Habits {
			fmt.Printf("    • %s (%s)\n", h.Title, h.Category)
		}
	}
	fmt.Println("\nTo initialize one, run: cli protocol <id>")
}

func handleProtocol(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Protocol id required")
		fmt.Fprintln(os.Stderr, "Usage: cli protocol <id>")
		os.Exit(1)
	}

	tmpl, ok := protocol.ByID(os.Args[2])
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: Unknown protocol '%s'\n", os.Args[2])
		fmt.Fprintln(os.Stderr, "To see the available protocols, run: cli protocols")
		os.Exit(1)
	}

	if err := eng.SetHabitsBulk(ctx, tmpl.ToHabits()); err != nil {
		exitEngineError(err)
	}

	fmt.Printf("✓ %s initialized with %d directive(s)\n", tmpl.Name, len(tmpl.Habits))
}

func handleHardcore(ctx context.Context, eng *engine.Engine) {
	if len(os.Args) < 3 || (os.Args[2] != "on" && os.Args[2] != "off") {
		fmt.Fprintln(os.Stderr, "Error: Expected 'on' or 'off'")
		fmt.Fprintln(os.Stderr, "Usage: cli hardcore on|off")
		os.Exit(1)
	}

	enabled := os.Args[2] == "on"
	if err := eng.SetHardcoreMode(ctx, enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if enabled {
		fmt.Println("✓ Commitment mode ENGAGED. Miss a full day and the system resets you.")
	} else {
		fmt.Println("✓ Commitment mode disengaged.")
	}
}

// resolveHabit matches a full id or an unambiguous prefix.
func resolveHabit(eng *engine.Engine, idArg string) model.Habit {
	var matches []model.Habit
	for _, h := range eng.Habits() {
		if h.ID.Value == idArg {
			return h
		}
		if strings.HasPrefix(h.ID.Value, idArg) {
			matches = append(matches, h)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fmt.Fprintf(os.Stderr, "Error: No habit matches '%s'\n", idArg)
	default:
		fmt.Fprintf(os.Stderr, "Error: '%s' is ambiguous (%d matches)\n", idArg, len(matches))
	}
	os.Exit(1)
	return model.Habit{}
}

func exitEngineError(err error) {
	switch {
	case errors.Is(err, engine.ErrAccountDead):
		fmt.Fprintln(os.Stderr, "Error: SYSTEM FAILURE — this account is DEAD. No further mutations are accepted.")
	case errors.Is(err, engine.ErrHabitNotFound):
		fmt.Fprintln(os.Stderr, "Error: Habit not found")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func getEnvDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
