// ABOUTME: Admin CLI for otpgate enrollment and audit management
// ABOUTME: Operates directly on the SQLite store and prints provisioning URIs and recovery codes

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"

	"github.com/parallaxsec/otpgate/internal/config"
	"github.com/parallaxsec/otpgate/internal/enroll"
	"github.com/parallaxsec/otpgate/internal/otp"
	"github.com/parallaxsec/otpgate/internal/store"
)

const banner = `
        _                   _
   ___ | |_ _ __   __ _ ___| |_ ___
  / _ \| __| '_ \ / _' / _' | __/ _ \
 | (_) | |_| |_) | (_| (_| | ||  __/
  \___/ \__| .__/ \__, \__,_|\__\___|
           |_|    |___/
`

const recoveryCodeCount = 8

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "enroll":
		err = cmdEnroll(args)
	case "list", "ls":
		err = cmdList()
	case "show":
		err = cmdShow(args)
	case "revoke":
		err = cmdRevoke(args)
	case "verify":
		err = cmdVerify(args)
	case "token":
		err = cmdToken(args)
	case "audit":
		err = cmdAudit(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: otpgate-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  enroll <user>           Enroll a user (prints otpauth URI + recovery codes)")
	fmt.Println("  list                    List all enrollments")
	fmt.Println("  show <user>             Show one enrollment in detail")
	fmt.Println("  revoke <user>           Revoke a user's enrollment")
	fmt.Println("  verify <user> <code>    Check a code locally (does not consume it)")
	fmt.Println("  token <user>            Issue a self-service enrollment token")
	fmt.Println("  audit                   Show the audit log")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  OTPGATE_CONFIG           Path to the YAML config file")
	fmt.Println("  OTPGATE_DB               Database path (overrides the config file)")
	fmt.Println("  OTPGATE_ENROLL_SECRET    Token signing secret (overrides the config file)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export OTPGATE_DB=/var/lib/otpgate/otpgate.db")
	fmt.Println("  otpgate-admin enroll alice")
	fmt.Println("  otpgate-admin token alice --ttl 24h")
	fmt.Println("  otpgate-admin audit --user alice --action auth_fail")
	fmt.Println()
}

// loadConfig reads OTPGATE_CONFIG if set, otherwise returns an empty
// config so env overrides can still apply.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("OTPGATE_CONFIG")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func openStore() (*store.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	dbPath := os.Getenv("OTPGATE_DB")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		return nil, nil, fmt.Errorf("no database path: set OTPGATE_DB or database.path in the config file")
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return s, cfg, nil
}

// actor identifies this CLI in created-by and audit records.
func actor() string {
	name := os.Getenv("USER")
	if name == "" {
		name = "unknown"
	}
	return "admin:" + name
}

func audit(s *store.SQLiteStore, action store.AuditAction, user string, detail map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &store.AuditEntry{Actor: actor(), Action: action, User: user, Detail: detail}
	if err := s.AppendAuditLog(ctx, entry); err != nil {
		color.Yellow("warning: audit entry not recorded: %v\n", err)
	}
}

// generateRecoveryCodes returns plaintext codes and their bcrypt
// hashes. The plaintext is shown exactly once.
func generateRecoveryCodes(n int) (codes []string, hashes []string, err error) {
	for i := 0; i < n; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generating recovery code: %w", err)
		}
		code := hex.EncodeToString(raw)
		code = code[:5] + "-" + code[5:]

		h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing recovery code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, string(h))
	}
	return codes, hashes, nil
}

// cmdEnroll creates an active enrollment for a user
func cmdEnroll(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: enroll <user>")
	}
	user := args[0]

	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	secret, err := otp.GenerateSecret(0)
	if err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}

	p := cfg.OTPParams()
	createdBy := actor()
	e := &store.Enrollment{
		User:      user,
		Secret:    secret,
		Algorithm: string(p.Algorithm),
		Digits:    p.Digits,
		PeriodSec: int(p.Period / time.Second),
		Skew:      p.Skew,
		Status:    store.EnrollmentActive,
		CreatedBy: &createdBy,
	}

	ctx := context.Background()
	if err := s.CreateEnrollment(ctx, e); err != nil {
		return fmt.Errorf("creating enrollment: %w", err)
	}

	codes, hashes, err := generateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return err
	}
	if err := s.AddRecoveryCodes(ctx, e.ID, hashes); err != nil {
		return fmt.Errorf("storing recovery codes: %w", err)
	}
	audit(s, store.AuditEnroll, user, map[string]any{"via": "cli"})

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Printf("✓ Enrolled %s\n", user)
	fmt.Println()
	cyan.Println("  Provisioning URI (scan with an authenticator app):")
	fmt.Printf("  %s\n", otp.ProvisioningURI(cfg.TOTP.Issuer, user, secret, p))
	fmt.Println()
	cyan.Println("  Recovery codes (shown once, store them safely):")
	for _, code := range codes {
		fmt.Printf("    %s\n", code)
	}
	fmt.Println()

	return nil
}

// cmdList lists all enrollments
func cmdList() error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	enrollments, err := s.ListEnrollments(context.Background())
	if err != nil {
		return fmt.Errorf("listing enrollments: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Enrollments")
	cyan.Println("  -----------")

	if len(enrollments) == 0 {
		fmt.Println("  (no enrollments)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tSTATUS\tALGORITHM\tDIGITS\tCREATED")
	fmt.Fprintln(w, "  ----\t------\t---------\t------\t-------")

	for _, e := range enrollments {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\n",
			e.User, e.Status, e.Algorithm, e.Digits, e.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdShow prints one enrollment in detail
func cmdShow(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: show <user>")
	}
	user := args[0]

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	e, err := s.GetEnrollmentByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("loading enrollment: %w", err)
	}
	unused, err := s.CountUnusedRecoveryCodes(ctx, user)
	if err != nil {
		return fmt.Errorf("counting recovery codes: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Enrollment")
	cyan.Println("  ----------")
	fmt.Printf("  User:            %s\n", e.User)
	fmt.Printf("  Status:          %s\n", e.Status)
	fmt.Printf("  Algorithm:       %s\n", e.Algorithm)
	fmt.Printf("  Digits:          %d\n", e.Digits)
	fmt.Printf("  Period:          %ds\n", e.PeriodSec)
	fmt.Printf("  Skew:            %d\n", e.Skew)
	fmt.Printf("  Recovery codes:  %d unused\n", unused)
	fmt.Printf("  Created:         %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.CreatedBy != nil {
		fmt.Printf("  Created by:      %s\n", *e.CreatedBy)
	}
	fmt.Println()

	return nil
}

// cmdRevoke revokes a user's enrollment
func cmdRevoke(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: revoke <user>")
	}
	user := args[0]

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	e, err := s.GetEnrollmentByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("loading enrollment: %w", err)
	}
	e.Status = store.EnrollmentRevoked
	if err := s.UpdateEnrollment(ctx, e); err != nil {
		return fmt.Errorf("revoking enrollment: %w", err)
	}
	audit(s, store.AuditRevoke, user, nil)

	green := color.New(color.FgGreen)
	green.Printf("✓ Revoked enrollment for %s\n", user)

	return nil
}

// cmdVerify checks a code locally without consuming the time step
func cmdVerify(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: verify <user> <code>")
	}
	user, code := args[0], args[1]

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.GetEnrollmentByUser(context.Background(), user)
	if err != nil {
		return fmt.Errorf("loading enrollment: %w", err)
	}

	_, ok, err := otp.ValidateAt(e.Secret, []byte(code), time.Now(), e.Params())
	if err != nil {
		return fmt.Errorf("validating code: %w", err)
	}
	if !ok {
		return fmt.Errorf("code is not valid for %s right now", user)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Code is valid for %s\n", user)
	return nil
}

const defaultTokenTTL = 24 * time.Hour

// tokenTTL resolves the token lifetime: an explicit --ttl flag wins,
// then a configured auth.token_ttl, then defaultTokenTTL.
func tokenTTL(args []string, cfgTTL time.Duration) (time.Duration, error) {
	ttl := defaultTokenTTL
	set := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ttl", "-t":
			if i+1 < len(args) {
				parsed, err := time.ParseDuration(args[i+1])
				if err != nil {
					return 0, fmt.Errorf("invalid ttl: %w", err)
				}
				ttl = parsed
				set = true
				i++
			}
		}
	}
	if !set && cfgTTL != 0 {
		ttl = cfgTTL
	}
	return ttl, nil
}

// cmdToken issues a self-service enrollment token
func cmdToken(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: token <user> [--ttl <duration>]")
	}
	user := args[0]
	args = args[1:]

	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	secret := os.Getenv("OTPGATE_ENROLL_SECRET")
	if secret == "" {
		secret = cfg.Auth.EnrollSecret
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: set OTPGATE_ENROLL_SECRET or auth.enroll_secret in the config file")
	}
	ttl, err := tokenTTL(args, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	token, err := enroll.NewIssuer([]byte(secret)).Issue(user, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	audit(s, store.AuditTokenIssued, user, map[string]any{"ttl": ttl.String()})

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Printf("✓ Enrollment token for %s (expires in %s)\n", user, ttl)
	fmt.Println()
	cyan.Println("  Token:")
	fmt.Printf("  %s\n", token)
	fmt.Println()

	return nil
}

// cmdAudit shows the audit log
func cmdAudit(args []string) error {
	var f store.AuditFilter

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user", "-u":
			if i+1 < len(args) {
				user := args[i+1]
				f.User = &user
				i++
			}
		case "--action", "-a":
			if i+1 < len(args) {
				action := store.AuditAction(args[i+1])
				f.Action = &action
				i++
			}
		case "--limit", "-n":
			if i+1 < len(args) {
				limit, err := strconv.Atoi(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid limit: %w", err)
				}
				f.Limit = limit
				i++
			}
		}
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListAuditLog(context.Background(), f)
	if err != nil {
		return fmt.Errorf("listing audit log: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Audit Log")
	cyan.Println("  ---------")

	if len(entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tUSER")
	fmt.Fprintln(w, "  ----\t-----\t------\t----")

	for _, entry := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			entry.Timestamp.Format("Jan 02 15:04:05"), entry.Actor, entry.Action, entry.User)
	}
	w.Flush()
	fmt.Println()

	return nil
}
