// ABOUTME: Entry point for the otpgate demo SSH server
// ABOUTME: Gates keyboard-interactive logins on TOTP verification

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/parallaxsec/otpgate/internal/authmod"
	"github.com/parallaxsec/otpgate/internal/conv"
	"github.com/parallaxsec/otpgate/internal/enroll"
	"github.com/parallaxsec/otpgate/internal/replay"
	"github.com/parallaxsec/otpgate/internal/sshgate"
	"github.com/parallaxsec/otpgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: otpgate-sshd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the SSH server")
		fmt.Println("  check     Validate the config file and exit")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  OTPGATE_SSHD_CONFIG  Config file path (default: otpgate-sshd.toml)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "check":
		err = runCheck()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("OTPGATE_SSHD_CONFIG"); p != "" {
		return p
	}
	return "otpgate-sshd.toml"
}

func runCheck() error {
	path := configPath()
	if _, err := Load(path); err != nil {
		return err
	}
	fmt.Printf("config %s is valid\n", path)
	return nil
}

func runServe(ctx context.Context) error {
	cfg, err := Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting otpgate-sshd",
		"version", version,
		"listen", cfg.Server.Listen,
		"database", cfg.Database.Path,
	)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	guard := replay.New(5*time.Minute, 10000)
	defer guard.Close()

	var tokens authmod.TokenVerifier
	if cfg.Auth.EnrollSecret != "" {
		tokens = enroll.NewIssuer([]byte(cfg.Auth.EnrollSecret))
	}

	onUnenrolled := conv.KindUserUnknown
	if cfg.Auth.OnUnknownUser == "ignore" {
		onUnenrolled = conv.KindIgnore
	}

	module := authmod.New(s, s, guard, tokens, authmod.Policy{
		Issuer:       cfg.TOTP.Issuer,
		Params:       cfg.OTPParams(),
		OnUnenrolled: onUnenrolled,
		MaxAttempts:  cfg.Auth.MaxAttempts,
	}, logger)

	hostKey, err := loadHostKey(cfg.Server.HostKeyPath)
	if err != nil {
		return err
	}

	gw := sshgate.NewGateway(module, logger)
	serverConfig := gw.ServerConfig(hostKey)
	serverConfig.ServerVersion = "SSH-2.0-OtpGate_1.0"

	return serve(ctx, cfg.Server.Listen, serverConfig, logger)
}

func loadHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing host key: %w", err)
	}
	return signer, nil
}

// serve accepts connections until the context is cancelled, then
// closes the listener and waits for active handshakes to finish.
func serve(ctx context.Context, addr string, config *ssh.ServerConfig, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	logger.Info("listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		nConn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				logger.Info("all connections closed")
				return nil
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConnection(nConn, config, logger)
		}()
	}
}

// handleConnection runs the handshake, which drives the verification
// conversation, then greets and closes. The demo server has no shell
// behind it; passing the gate is the whole point.
func handleConnection(nConn net.Conn, config *ssh.ServerConfig, logger *slog.Logger) {
	defer nConn.Close()

	serverConn, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		logger.Debug("handshake failed", "remote", nConn.RemoteAddr(), "error", err)
		return
	}
	defer serverConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Debug("channel accept failed", "error", err)
			return
		}
		go ssh.DiscardRequests(requests)

		fmt.Fprintf(channel, "otpgate: verified %s\r\n", serverConn.User())
		channel.Close()
		return
	}
}

func setupLogger(cfg LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
