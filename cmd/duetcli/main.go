// Command duetcli is a terminal client for one direct conversation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"duet/internal/client"
	"duet/internal/logging"
	"duet/internal/models"
)

func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	server := flag.String("server", "http://localhost:8080", "API base URL")
	token := flag.String("token", os.Getenv("DUET_TOKEN"), "Bearer token (defaults to $DUET_TOKEN)")
	userID := flag.String("user", "", "Your user id")
	peerID := flag.String("peer", "", "User id to chat with")
	cacheFile := flag.String("cache", filepath.Join(os.TempDir(), "duetcli.cache"), "Offline cache file")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	slog.SetDefault(logging.New(os.Stderr, *logLevel, "text"))

	if *userID == "" || *peerID == "" {
		return errors.New("-user and -peer are required")
	}

	c, err := client.New(client.Config{
		ServerURL: *server,
		Token:     *token,
		UserID:    *userID,
		CacheFile: *cacheFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	view, err := c.OpenChat(ctx, *peerID, nil)
	if err != nil {
		return err
	}
	defer view.Close()

	var (
		mu      sync.Mutex
		printed = make(map[string]bool)
	)
	view.OnMessages(func(msgs []models.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			_, _ = fmt.Fprintf(stdout, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), senderName(m.Sender), m.Content)
			for _, a := range m.Attachments {
				_, _ = fmt.Fprintf(stdout, "    (%s) %s\n", a.Kind, a.URL)
			}
		}
	})
	view.Subscribe(models.ServerEventUserTyping, func(evt models.ServerEvent) {
		_, _ = fmt.Fprintf(stdout, "* %s is typing\n", evt.UserID)
	})
	view.Subscribe(models.ServerEventError, func(evt models.ServerEvent) {
		if evt.Error != nil {
			_, _ = fmt.Fprintf(stdout, "! %s\n", evt.Error.Message)
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			view.SetDraft(line)
			if _, err := view.Send(ctx); err != nil {
				_, _ = fmt.Fprintf(stdout, "! not sent: %v\n", err)
			}
		}
	}
}

func senderName(s models.SenderRef) string {
	if p, ok := s.Profile(); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return s.UserID()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("duetcli failed", "error", err)
		os.Exit(1)
	}
}
