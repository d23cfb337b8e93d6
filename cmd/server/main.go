// cmd/server/main.go
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otium-ai/ops-agent-api-server/internal/agent"
	"github.com/otium-ai/ops-agent-api-server/internal/api"
	"github.com/otium-ai/ops-agent-api-server/internal/auth"
	"github.com/otium-ai/ops-agent-api-server/internal/config"
	"github.com/otium-ai/ops-agent-api-server/internal/engine"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
	"github.com/otium-ai/ops-agent-api-server/internal/ssh"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

func main() {
	// --- Load configuration first ---
	if err := config.LoadConfig(); err != nil {
		// Use a basic logger here as the configured one isn't ready yet
		log.New(os.Stderr).Fatalf("Failed to load configuration: %v", err)
	}

	// --- Initialize logger based on config ---
	log.SetOutput(os.Stderr)
	log.SetTimeFormat("2006-01-02 15:04:05")

	switch strings.ToLower(config.AppConfig.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	default:
		log.Warnf("Invalid LOG_LEVEL '%s' specified in config, defaulting to 'info'", config.AppConfig.LogLevel)
		log.SetLevel(log.InfoLevel)
	}

	log.Infof("Configuration loaded successfully. Log level set to '%s'.", config.AppConfig.LogLevel)
	log.Debugf("API Port: %s", config.AppConfig.APIPort)
	log.Debugf("JWT Secret Loaded: %t", config.AppConfig.JWTSecret != "" && config.AppConfig.JWTSecret != "default_secret_change_me")
	log.Debugf("Store Backend: %s", config.AppConfig.StoreBackend)
	if config.AppConfig.JWTSecret == "default_secret_change_me" {
		log.Warn("Using default JWT secret. Change JWT_SECRET environment variable for production!")
	}

	auth.InitAuth()

	// --- Backing store ---
	var st store.Store
	switch strings.ToLower(config.AppConfig.StoreBackend) {
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(config.AppConfig.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite store at '%s': %v", config.AppConfig.SQLitePath, err)
		}
		st = sqliteStore
		log.Infof("Using sqlite store at '%s'", config.AppConfig.SQLitePath)
	case "memory", "":
		st = store.NewMemoryStore()
		log.Info("Using in-memory store; state is lost on restart")
	default:
		log.Fatalf("Unknown STORE_BACKEND '%s' (expected 'memory' or 'sqlite')", config.AppConfig.StoreBackend)
	}
	defer st.Close()

	seedAdminUser(st)

	// --- Safety gate ---
	gate := safety.NewGate()
	if config.AppConfig.DenyListFile != "" {
		var err error
		gate, err = safety.NewGateFromFile(config.AppConfig.DenyListFile)
		if err != nil {
			log.Fatalf("Failed to load deny-list file '%s': %v", config.AppConfig.DenyListFile, err)
		}
		log.Infof("Loaded extra deny-list patterns from '%s'", config.AppConfig.DenyListFile)
	}

	// --- SSH connection manager ---
	sessions := ssh.NewManager(ssh.ManagerOptions{
		ConnectTimeout: config.AppConfig.SSHConnectTimeout,
		CommandTimeout: config.AppConfig.SSHCommandTimeout,
		ProbeTimeout:   config.AppConfig.SSHProbeTimeout,
		SweepInterval:  config.AppConfig.SessionSweepInterval,
		IdleTimeout:    config.AppConfig.SessionIdleTimeout,
	})
	sessions.SetEvictHandler(func(connID string) {
		if err := st.MarkConnectionDisconnected(connID, time.Now().UTC()); err != nil && err != store.ErrNotFound {
			log.Warnf("Failed to mark evicted connection '%s' disconnected: %v", connID, err)
		}
	})
	defer sessions.Shutdown()

	// --- Engine and collaborators ---
	eng := engine.NewEngine(st, sessions, gate, config.AppConfig.SSHCommandTimeout)
	generator := agent.NewRuleBasedGenerator()
	detector := agent.NewDetector(sessions, config.AppConfig.SSHProbeTimeout)

	// --- Initialize gin router ---
	if strings.ToLower(config.AppConfig.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else if strings.ToLower(config.AppConfig.GinMode) == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	log.Infof("Gin running in '%s' mode", config.AppConfig.GinMode)

	router := gin.Default()

	// Configure trusted proxies
	if config.AppConfig.TrustedProxies == "nil" {
		log.Info("Proxy trust disabled (TRUSTED_PROXIES=nil)")
		router.SetTrustedProxies(nil)
	} else if config.AppConfig.TrustedProxies != "" {
		proxyList := strings.Split(config.AppConfig.TrustedProxies, ",")
		for i, proxy := range proxyList {
			proxyList[i] = strings.TrimSpace(proxy)
		}
		log.Infof("Setting trusted proxies: %v", proxyList)
		router.SetTrustedProxies(proxyList)
	} else {
		log.Warn("All proxies are trusted (default). Set TRUSTED_PROXIES=nil to disable proxy trust or provide a comma-separated list of trusted proxy IPs.")
	}

	server := api.NewServer(st, sessions, eng, generator, detector)
	api.SetupRoutes(router, server)

	router.GET("/", func(c *gin.Context) {
		protocol := "http"
		if config.AppConfig.TLSEnable || c.Request.Header.Get("X-Forwarded-Proto") == "https" {
			protocol = "https"
		}
		baseURL := fmt.Sprintf("%s://%s", protocol, c.Request.Host)

		c.JSON(http.StatusOK, gin.H{
			"message":        "Ops Agent API is running.",
			"login_endpoint": fmt.Sprintf("POST %s/login", baseURL),
			"api_base_path":  fmt.Sprintf("%s/api/v1", baseURL),
			"notes": []string{
				"Commands are generated as step plans and require per-step approval.",
				"Approved steps execute immediately over the user's SSH connection.",
			},
		})
	})

	// --- Shut down cleanly on SIGINT/SIGTERM ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("Received %s, shutting down", sig)
		sessions.Shutdown()
		st.Close()
		os.Exit(0)
	}()

	// --- Start the server ---
	listenAddr := fmt.Sprintf(":%s", config.AppConfig.APIPort)

	if config.AppConfig.TLSEnable {
		if config.AppConfig.TLSCertFile == "" || config.AppConfig.TLSKeyFile == "" {
			log.Fatalf("TLS is enabled but TLS_CERT_FILE or TLS_KEY_FILE is not set in config.")
		}
		if _, err := os.Stat(config.AppConfig.TLSCertFile); os.IsNotExist(err) {
			log.Fatalf("TLS cert file not found: %s", config.AppConfig.TLSCertFile)
		}
		if _, err := os.Stat(config.AppConfig.TLSKeyFile); os.IsNotExist(err) {
			log.Fatalf("TLS key file not found: %s", config.AppConfig.TLSKeyFile)
		}
		log.Infof("Starting HTTPS server, accessible locally at https://localhost:%s", config.AppConfig.APIPort)
		if err := router.RunTLS(listenAddr, config.AppConfig.TLSCertFile, config.AppConfig.TLSKeyFile); err != nil {
			log.Fatalf("Failed to start HTTPS server: %v", err)
		}
	} else {
		log.Infof("Starting HTTP server, accessible locally at http://localhost:%s", config.AppConfig.APIPort)
		if err := router.Run(listenAddr); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}
}

// seedAdminUser creates the configured admin account when the user store is
// empty, so a fresh deployment has a way in.
func seedAdminUser(st store.Store) {
	count, err := st.CountUsers()
	if err != nil {
		log.Fatalf("Failed to count users: %v", err)
	}
	if count > 0 {
		return
	}
	if config.AppConfig.AdminPassword == "" {
		log.Warn("User store is empty and ADMIN_PASSWORD is not set; no accounts can log in")
		return
	}

	hash, err := auth.HashPassword(config.AppConfig.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     config.AppConfig.AdminUser,
		PasswordHash: hash,
		Role:         "admin",
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateUser(user); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	log.Infof("Seeded admin user '%s'", user.Username)
}
