package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/logger"
	"github.com/examprep/examprep-backend/internal/player"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func main() {
	home, _ := os.UserHomeDir()
	apiURL := flag.String("api", envOr("EXAMPREP_API", "http://localhost:8080"), "Backend base URL")
	token := flag.String("token", os.Getenv("EXAMPREP_TOKEN"), "Bearer token (student)")
	examFlag := flag.String("exam", "", "Exam ID")
	attemptFlag := flag.String("attempt", "", "Attempt ID (starts or resumes an attempt when empty)")
	stateDir := flag.String("state", filepath.Join(home, ".examprep", "snapshots"), "Directory for local progress snapshots")
	logFile := flag.String("log", filepath.Join(home, ".examprep", "player.log"), "Log file")
	flag.Parse()

	if *token == "" || *examFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: player -exam <id> [-attempt <id>] (token via -token or EXAMPREP_TOKEN)")
		os.Exit(2)
	}
	examID, err := uuid.Parse(*examFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid exam id:", err)
		os.Exit(2)
	}

	log := openLog(*logFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := player.NewClient(*apiURL, *token)

	attemptID, err := resolveAttempt(ctx, client, examID, *attemptFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, player.UserMessage(err))
		log.Error().Err(err).Msg("Failed to start attempt")
		os.Exit(1)
	}

	store, err := player.NewFileStore(*stateDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	view := newScreen(os.Stdout, log)
	p := player.New(client, store, countdown.System, view, examID, attemptID)
	view.attach(p)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "player needs an interactive terminal")
		os.Exit(1)
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to enter raw mode:", err)
		os.Exit(1)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	if err := p.Open(ctx); err != nil {
		// The load failure was toasted; keep the screen until the user quits.
		log.Error().Err(err).Msg("Failed to load exam")
	}

	session := player.NewSession(p, countdown.System, player.DefaultAutosaveInterval)
	session.Start(ctx)
	defer session.Close()

	keys := make(chan player.Key)
	go readKeys(bufio.NewReader(os.Stdin), keys)

	for {
		select {
		case <-ctx.Done():
			return
		case <-view.finished:
			view.render()
			return
		case k, ok := <-keys:
			if !ok {
				return
			}
			if !view.handle(ctx, session, k) {
				return
			}
		}
	}
}

func resolveAttempt(ctx context.Context, client *player.Client, examID uuid.UUID, raw string) (uuid.UUID, error) {
	if raw != "" {
		return uuid.Parse(raw)
	}
	attempt, err := client.StartAttempt(ctx, examID)
	if err != nil {
		return uuid.Nil, err
	}
	return attempt.ID, nil
}

// readKeys decodes raw terminal input. Arrow keys arrive as ESC [ C / ESC [ D.
func readKeys(r *bufio.Reader, out chan<- player.Key) {
	defer close(out)
	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			return
		}
		if ch != 0x1b {
			out <- player.Key(ch)
			continue
		}
		if next, _ := r.Peek(2); len(next) == 2 && next[0] == '[' {
			_, _ = r.Discard(2)
			switch next[1] {
			case 'C':
				out <- player.KeyRight
			case 'D':
				out <- player.KeyLeft
			}
			continue
		}
		out <- player.Key(ch)
	}
}

func openLog(path string) zerolog.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.Nop()
	}
	return logger.SetupTo(f, envOr("LOG_LEVEL", "info"), "json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
