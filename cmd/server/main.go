/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the piecework settlement server. Handles
  configuration, dependency injection, first-run seeding and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Read environment configuration, apply flag overrides
  2. Open the SQLite store and run migrations
  3. Seed task types and the bootstrap admin on first run
  4. Wire services, handler and router
  5. Start the server with graceful shutdown

CONFIGURATION (environment, PIECEWORK_ prefix):
  PIECEWORK_PORT             HTTP port (default 8080)
  PIECEWORK_DB_PATH          SQLite path (default piecework.db, ":memory:" works)
  PIECEWORK_JWT_SECRET       Token signing secret (required)
  PIECEWORK_TOKEN_TTL        Token lifetime (default 12h)
  PIECEWORK_ALLOWED_ORIGINS  CORS origins (default localhost dev ports)
  PIECEWORK_ADMIN_EMAIL      Bootstrap admin, created only when no users exist
  PIECEWORK_ADMIN_PASSWORD

FLAGS:
  -port and -db override the corresponding environment values.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for active
  requests, close the database, exit.

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"

	"github.com/fibreline/piecework-engine/api"
	"github.com/fibreline/piecework-engine/approval"
	"github.com/fibreline/piecework-engine/engine"
	"github.com/fibreline/piecework-engine/roster"
	"github.com/fibreline/piecework-engine/settlement"
	"github.com/fibreline/piecework-engine/store/sqlite"
	"github.com/fibreline/piecework-engine/worklog"
)

// Config is the environment configuration, prefix PIECEWORK_.
type Config struct {
	Port           int           `default:"8080"`
	DBPath         string        `envconfig:"DB_PATH" default:"piecework.db"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"12h"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	AdminEmail     string        `envconfig:"ADMIN_EMAIL"`
	AdminPassword  string        `envconfig:"ADMIN_PASSWORD"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("piecework", &cfg); err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if err := seed(context.Background(), store, cfg); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	rosterSvc := roster.NewService(store, store, store)
	worklogSvc := worklog.NewService(store, store)
	approvalSvc := approval.NewService(store, store)
	settlementEng := settlement.NewEngine(store, store)

	auth := api.NewAuth(store, []byte(cfg.JWTSecret), cfg.TokenTTL)
	handler := api.NewHandler(rosterSvc, worklogSvc, approvalSvc, settlementEng)
	router := api.NewRouter(handler, auth, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seed inserts the task-type catalogue and the bootstrap admin on an empty
// database. Both writes are skipped once the tables have rows, so restarts
// are safe.
func seed(ctx context.Context, store *sqlite.Store, cfg Config) error {
	types, err := store.ListTaskTypes(ctx)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		defaults := []engine.TaskType{
			{ID: uuid.New(), Code: engine.TaskCodeCombing, Name: "Combing", Unit: "kg", DefaultRate: engine.ZeroMoney()},
			{ID: uuid.New(), Code: engine.TaskCodeWeaving, Name: "Weaving", Unit: "m", DefaultRate: engine.ZeroMoney()},
		}
		for _, tt := range defaults {
			if err := store.SaveTaskType(ctx, tt); err != nil {
				return err
			}
		}
		log.Println("Seeded default task types")
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 || cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = store.CreateUser(ctx, engine.AppUser{
		ID:           uuid.New(),
		Email:        cfg.AdminEmail,
		PasswordHash: string(hash),
		Role:         engine.RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	log.Printf("Seeded bootstrap admin %s", cfg.AdminEmail)
	return nil
}
