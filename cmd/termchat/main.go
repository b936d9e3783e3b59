package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/termchat/termchat-client/pkg/api"
	"github.com/termchat/termchat-client/pkg/client"
	"github.com/termchat/termchat-client/pkg/config"
	"github.com/termchat/termchat-client/pkg/crypto"
	"github.com/termchat/termchat-client/pkg/protocol"
	"github.com/termchat/termchat-client/pkg/storage"
)

var (
	configPath = flag.String("config", config.DefaultPath(), "Path to config file")
	serverURL  = flag.String("server", "", "Relay WebSocket URL (overrides config)")
	username   = flag.String("username", "", "Display name (overrides config)")
	passphrase = flag.String("passphrase", "", "Derive the session key from a passphrase instead of the key file")
	genKey     = flag.Bool("genkey", false, "Generate a fresh session key, replacing the key file")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *username != "" {
		cfg.Username = *username
	}
	if cfg.Username == "" {
		cfg.Username = defaultUsername()
	}

	logger := newLogger(cfg.LogLevel)

	key, err := loadKey(cfg)
	if err != nil {
		return fmt.Errorf("failed to load session key: %w", err)
	}

	fingerprint, err := key.Fingerprint()
	if err != nil {
		return fmt.Errorf("failed to fingerprint session key: %w", err)
	}
	logger.Info().Str("fingerprint", fingerprint).Msg("session key loaded")

	var history *storage.History
	if cfg.HistoryFile != "" {
		history, err = storage.NewHistory(cfg.HistoryFile, key, cfg.HistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer history.Close()

		printRecentHistory(history)
	}

	conn := client.NewChatConnection(cfg, key, logger)
	if history != nil {
		conn.AttachStore(history)
	}

	conn.OnMessage = func(msg protocol.ChatMessage) {
		printMessage(msg)
	}
	conn.OnEvent = func(e client.Event) {
		switch e.Kind {
		case client.EventStateChanged:
			logger.Info().Str("state", e.State.String()).Msg("connection state changed")
		case client.EventDecodeError:
			logger.Warn().Err(e.Err).Msg("dropped an undecodable frame")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		apiCfg := api.DefaultConfig()
		apiCfg.Addr = cfg.DebugListen
		diag := api.NewServer(conn, history, fingerprint, cfg.ServerURL, apiCfg, logger)
		go func() {
			if err := diag.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("diagnostics server stopped")
			}
		}()
	}

	logger.Info().Str("url", cfg.ServerURL).Msg("connecting")
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	fmt.Printf("Connected as %s. Type a message and press enter; /quit to exit.\n", cfg.Username)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	runInputLoop(conn, cfg.Username, logger)

	conn.Close()
	logger.Info().Msg("goodbye")
	return nil
}

func runInputLoop(conn *client.ChatConnection, username string, logger zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/status":
			fmt.Printf("* connection: %s\n", conn.State())
			continue
		}

		if err := conn.Send(protocol.NewTextMessage(username, line)); err != nil {
			logger.Warn().Err(err).Msg("message not sent")
			fmt.Printf("* not sent: %v\n", err)
		}
	}
}

func loadKey(cfg config.Config) (*crypto.Key, error) {
	if *passphrase != "" {
		return crypto.DeriveFromPassphrase(*passphrase)
	}
	if *genKey {
		key, err := crypto.Generate()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveKeyFile(cfg.KeyFile, key); err != nil {
			return nil, err
		}
		return key, nil
	}
	return crypto.EnsureKeyFile(cfg.KeyFile)
}

func printRecentHistory(history *storage.History) {
	entries, err := history.Recent(20)
	if err != nil || len(entries) == 0 {
		return
	}
	fmt.Println("--- recent messages ---")
	for _, entry := range entries {
		printMessage(entry.Message)
	}
	fmt.Println("-----------------------")
}

func printMessage(msg protocol.ChatMessage) {
	stamp := msg.Timestamp.Local().Format("15:04")
	switch msg.Type {
	case protocol.MessageTypeSystem:
		fmt.Printf("[%s] * %s\n", stamp, msg.Body)
	case protocol.MessageTypePresence:
		fmt.Printf("[%s] * %s %s\n", stamp, msg.Sender, msg.Body)
	default:
		fmt.Printf("[%s] %s: %s\n", stamp, msg.Sender, msg.Body)
	}
}

func defaultUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
