package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/corrente/internal/allocation"
	"github.com/erazemk/corrente/internal/api"
	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/db"
	"github.com/erazemk/corrente/internal/metrics"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

type options struct {
	dbPath        string
	addr          string
	adminUser     string
	logPath       string
	allocateEvery time.Duration
	debug         bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("corrente", flag.ContinueOnError)
	o := &options{}

	fs.StringVar(&o.dbPath, "db", "corrente.sqlite3", "")
	fs.StringVar(&o.dbPath, "d", "corrente.sqlite3", "")

	fs.StringVar(&o.addr, "addr", ":8080", "")
	fs.StringVar(&o.addr, "a", ":8080", "")

	fs.StringVar(&o.adminUser, "user", "admin", "")
	fs.StringVar(&o.adminUser, "u", "admin", "")

	fs.StringVar(&o.logPath, "log", "", "")
	fs.StringVar(&o.logPath, "l", "", "")

	fs.DurationVar(&o.allocateEvery, "allocate-every", 15*time.Minute, "")
	fs.DurationVar(&o.allocateEvery, "i", 15*time.Minute, "")

	fs.BoolVar(&o.debug, "debug", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: corrente [flags]

Flags:
  -d, -db <path>                SQLite database path (default: corrente.sqlite3)
  -a, -addr <host:port>         listen address (default: :8080)
  -u, -user <name>              admin username on first run (default: admin)
  -l, -log <path>               log file path (default: no file, stdout/stderr only)
  -i, -allocate-every <dur>     periodic allocation interval, 0 disables (default: 15m)
      -debug                    log at debug level
  -h, -help                     show this help and exit
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if o.allocateEvery < 0 {
		return nil, fmt.Errorf("negative allocation interval: %s", o.allocateEvery)
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	logger, closeLog, err := setupLogger(o.logPath, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(o, logger); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(o *options, logger *slog.Logger) error {
	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(o.dbPath); os.IsNotExist(err) {
		database, password, err := initDatabase(o.dbPath, o.adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(o.dbPath, o.adminUser, password)
		fmt.Println()
	}

	database, err := db.Open(o.dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", o.dbPath)

	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	policy, err := auth.NewPolicy()
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	hub := realtime.NewHub(logger.With("component", "feed"))
	allocator := allocation.New(store.Repository{DB: database}, m, logger.With("component", "allocator"))

	router, err := api.NewRouter(api.Config{
		DB:        database,
		JWTSecret: jwtSecret,
		Policy:    policy,
		Allocator: allocator,
		Hub:       hub,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	server := &http.Server{
		Addr:              o.addr,
		Handler:           api.LoggingMiddleware(m)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.allocateEvery > 0 {
		go allocateEvery(ctx, database, allocator, hub, o.allocateEvery)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", o.addr, "allocate_every", o.allocateEvery.String())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// allocateEvery runs the allocator on a fixed interval until ctx is done.
// Failed runs are logged and retried on the next tick.
func allocateEvery(ctx context.Context, database *sql.DB, allocator *allocation.Allocator, hub *realtime.Hub, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := allocator.Run(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("scheduled allocation failed", "error", err)
				}
				continue
			}
			api.PublishAllocation(database, hub, res)
		}
	}
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	_, err = store.CreateUser(context.Background(), database, adminUsername, string(hash), model.RoleAdmin)
	if err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
