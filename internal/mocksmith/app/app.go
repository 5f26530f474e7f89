// Package app wires the mocksmith control plane together: SQLite store,
// Matrix chat surface, oracle provider, assistant pipeline, and the
// optional mock-engine integrations.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"mocksmith/common/trace"
	"mocksmith/common/version"
	"mocksmith/internal/mocksmith/assistant"
	mocksmithconfig "mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/engine"
	"mocksmith/internal/mocksmith/engine/docker"
	"mocksmith/internal/mocksmith/llm"
	"mocksmith/internal/mocksmith/matrix"
	"mocksmith/internal/mocksmith/store"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	Matrix       matrix.Config

	// DefaultWorkspace is the workspace requests operate in unless the
	// operator switches. Created at startup if missing.
	DefaultWorkspace string

	// OperatorSenders is an optional allowlist of Matrix user IDs permitted
	// to talk to mocksmith. When empty, any room member is accepted.
	OperatorSenders []string

	// EngineAdminURL is the base URL of an already-running mock engine's
	// admin API. When set, mapping changes are pushed there.
	EngineAdminURL string

	// EnableDocker turns on the Docker lifecycle adapter so mocksmith can
	// spawn engine containers itself.
	EnableDocker bool
	// DockerNetwork overrides the Docker network engines attach to.
	DockerNetwork string
	// EngineImage is the container image used when spawning engines.
	EngineImage string

	// HTTPAddr is the TCP address for the optional health/status HTTP
	// server (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string

	// OracleProvider is an optional pre-constructed provider. When nil the
	// app builds an OpenAI-compatible one from the environment.
	OracleProvider llm.Provider
	// OracleAPIKeyEnv names the environment variable holding the oracle
	// API key. Defaults to MOCKSMITH_ORACLE_API_KEY.
	OracleAPIKeyEnv string

	// SessionTTL and SessionMaxTurns tune conversation memory.
	SessionTTL      time.Duration
	SessionMaxTurns int
}

// App is the mocksmith application.
type App struct {
	config       *Config
	store        *store.Store
	configStore  mocksmithconfig.Store
	matrix       *matrix.Client
	assistant    *assistant.Assistant
	sessions     *SessionTracker
	healthServer *HealthServer
	runtime      engine.Runtime
	engineSync   *engineRouter
}

// storeAuditor adapts the SQLite audit log to the assistant's Auditor
// interface. Failures are logged, never surfaced.
type storeAuditor struct {
	store *store.Store
}

func (r *storeAuditor) Record(ctx context.Context, actor string, action assistant.Action, target string, success bool, detail map[string]interface{}) {
	result := "ok"
	if !success {
		result = "error"
	}
	traceID := trace.FromContext(ctx)
	if err := r.store.WriteAudit(ctx, traceID, actor, string(action), target, result, store.AuditPayload(detail), ""); err != nil {
		slog.Warn("audit write failed", "action", action, "err", err)
	}
}

// New creates the mocksmith application.
func New(config *Config) (*App, error) {
	if config.DefaultWorkspace == "" {
		config.DefaultWorkspace = "default"
	}

	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := st.EnsureWorkspace(context.Background(), config.DefaultWorkspace); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to ensure default workspace: %w", err)
	}

	// Inject the DB so the Matrix client can persist the sync token across
	// restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	configStore := mocksmithconfig.New(st)

	provider := config.OracleProvider
	if provider == nil {
		keyEnv := config.OracleAPIKeyEnv
		if keyEnv == "" {
			keyEnv = "MOCKSMITH_ORACLE_API_KEY"
		}
		apiKey := os.Getenv(keyEnv)
		if apiKey == "" {
			slog.Warn("no oracle API key in environment; requests will fall back to keyword heuristics where possible", "key_env", keyEnv)
		}
		provider = llm.NewOpenAI(llm.OpenAIConfig{APIKey: apiKey})
	}

	// Engine sync: mapping changes are pushed through the router, whose
	// target an operator can repoint with /mocksmith engine start.
	engineSync := &engineRouter{}
	if config.EngineAdminURL != "" {
		engineSync.set(engine.NewClient(config.EngineAdminURL))
		slog.Info("engine sync enabled", "admin_url", config.EngineAdminURL)
	}

	var runtime engine.Runtime
	if config.EnableDocker {
		networkName := config.DockerNetwork
		if networkName == "" {
			networkName = engine.DefaultNetwork
		}
		adapter, derr := docker.NewWithNetwork(networkName)
		if derr != nil {
			slog.Warn("Docker runtime unavailable", "err", derr)
		} else {
			if netErr := adapter.EnsureNetwork(context.Background()); netErr != nil {
				slog.Warn("could not ensure Docker network; engine spawning may fail", "network", networkName, "err", netErr)
			}
			runtime = adapter
			slog.Info("Docker engine runtime ready", "network", networkName)
		}
	}

	asst := assistant.New(st, st, st, provider, assistant.Options{
		Engine: engineSync,
		Audit:  &storeAuditor{store: st},
		Config: configStore,
		Logger: slog.Default(),
	})

	var healthServer *HealthServer
	if config.HTTPAddr != "" {
		healthServer = NewHealthServer(config.HTTPAddr, st)
		slog.Info("health server configured", "addr", config.HTTPAddr)
	}

	return &App{
		config:       config,
		store:        st,
		configStore:  configStore,
		matrix:       matrixClient,
		assistant:    asst,
		sessions:     NewSessionTracker(config.SessionTTL, config.SessionMaxTurns),
		healthServer: healthServer,
		runtime:      runtime,
		engineSync:   engineSync,
	}, nil
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}
	slog.Info("Matrix connected", "user_id", a.matrix.GetUserID())

	// Prune cold conversation sessions in the background.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.sessions.Prune(); n > 0 {
					slog.Debug("pruned conversation sessions", "count", n)
				}
			}
		}
	}()

	for _, roomID := range a.config.Matrix.OperatorRooms {
		a.matrix.SendNotice(roomID, "Mocksmith is ready. Describe the endpoint you want mocked, or type /mocksmith help.")
	}

	slog.Info("mocksmith is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	for _, roomID := range a.config.Matrix.OperatorRooms {
		a.matrix.SendMessage(roomID, "Mocksmith is shutting down.")
	}
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes incoming Matrix messages.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	sender := evt.Sender.String()
	if len(a.config.OperatorSenders) > 0 && !contains(a.config.OperatorSenders, sender) {
		return
	}

	roomID := evt.RoomID.String()
	text := strings.TrimSpace(msgContent.Body)
	ctx = trace.WithTraceID(ctx, trace.GenerateID())

	if strings.HasPrefix(text, "/mocksmith") {
		a.reply(roomID, evt.ID.String(), a.handleCommand(ctx, roomID, sender, text))
		return
	}

	a.matrix.SetTyping(roomID, true, 30*time.Second)
	defer a.matrix.SetTyping(roomID, false, 0)

	history := a.sessions.History(roomID, sender)
	resp := a.assistant.Handle(ctx, &assistant.Request{
		UserPrompt: text,
		Workspace:  a.config.DefaultWorkspace,
		History:    history,
		Sender:     sender,
	})

	reply := formatResponse(resp)
	a.sessions.Append(roomID, sender, text, reply)

	htmlBody := markdownToHTML(reply)
	if err := a.matrix.SendFormattedMessage(roomID, htmlBody, reply); err != nil {
		slog.Error("failed to send response", "room", roomID, "err", err)
	}
}

// handleCommand answers the /mocksmith slash commands.
func (a *App) handleCommand(ctx context.Context, roomID, sender, text string) string {
	fields := strings.Fields(text)
	sub := ""
	if len(fields) > 1 {
		sub = fields[1]
	}

	switch sub {
	case "", "help":
		return strings.Join([]string{
			"**Mocksmith commands**",
			"/mocksmith help - this message",
			"/mocksmith version - build information",
			"/mocksmith ping - liveness check",
			"/mocksmith reset - forget the current conversation",
			"/mocksmith config set <key> <value> - tune the oracle (oracle.model, oracle.temperature, oracle.max_tokens)",
			"/mocksmith engine start|stop|status|remove [workspace] - manage mock-engine containers",
			"/mocksmith engine reset - clear all mappings on the routed engine",
			"/mocksmith audit [n] - recent activity",
			"",
			"Anything else you type is treated as a request, e.g. \"mock GET /api/users returning a list of two users\".",
		}, "\n")
	case "version":
		return fmt.Sprintf("mocksmith %s (%s, built %s)", version.Version, version.GitCommit, version.BuildTime)
	case "ping":
		return "pong"
	case "reset":
		a.sessions.Reset(roomID, sender)
		return "Conversation forgotten."
	case "config":
		return a.handleConfigCommand(ctx, fields[2:])
	case "engine":
		return a.handleEngineCommand(ctx, fields[2:])
	case "audit":
		return a.handleAuditCommand(ctx, fields[2:])
	default:
		return fmt.Sprintf("Unknown command %q. Try /mocksmith help.", sub)
	}
}

func (a *App) handleConfigCommand(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /mocksmith config set <key> <value> | /mocksmith config list"
	}
	switch args[0] {
	case "set":
		if len(args) < 3 {
			return "Usage: /mocksmith config set <key> <value>"
		}
		if err := mocksmithconfig.SetOracleOverride(ctx, a.configStore, args[1], args[2]); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Set %s = %s", args[1], args[2])
	case "list":
		values, err := a.configStore.List(ctx)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		if len(values) == 0 {
			return "No overrides set; environment defaults are in effect."
		}
		var sb strings.Builder
		for k, v := range values {
			fmt.Fprintf(&sb, "%s = %s\n", k, v)
		}
		return strings.TrimSpace(sb.String())
	case "unset":
		if len(args) < 2 {
			return "Usage: /mocksmith config unset <key>"
		}
		if err := a.configStore.Delete(ctx, args[1]); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Unset %s", args[1])
	default:
		return "Usage: /mocksmith config set <key> <value> | /mocksmith config list | /mocksmith config unset <key>"
	}
}

func (a *App) reply(roomID, eventID, message string) {
	htmlBody := markdownToHTML(message)
	if err := a.matrix.SendFormattedMessage(roomID, htmlBody, message); err != nil {
		slog.Error("failed to send reply", "room", roomID, "err", err)
		a.matrix.ReplyToMessage(roomID, eventID, message)
	}
}

// formatResponse renders a pipeline Response as chat Markdown.
func formatResponse(resp *assistant.Response) string {
	var sb strings.Builder
	if resp.Success {
		sb.WriteString(resp.Message)
	} else {
		sb.WriteString("⚠ ")
		sb.WriteString(resp.Message)
	}
	if resp.Explanation != "" {
		sb.WriteString("\n\n")
		sb.WriteString(resp.Explanation)
	}
	if !resp.Success && len(resp.Mappings) > 0 {
		sb.WriteString("\n\nAvailable mappings:")
		for _, m := range resp.Mappings {
			fmt.Fprintf(&sb, "\n- `%s %s` (%s)", m.Method, m.Path, m.Name)
		}
	}
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// markdownToHTML converts the small subset of Markdown produced by the
// response formatter into HTML suitable for a Matrix m.text event with
// format=org.matrix.custom.html.
func markdownToHTML(md string) string {
	var out strings.Builder
	lines := strings.Split(md, "\n")
	inCode := false
	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if !inCode {
				out.WriteString("<pre><code>")
				inCode = true
			} else {
				out.WriteString("</code></pre>")
				inCode = false
			}
			continue
		}
		if inCode {
			escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(line)
			out.WriteString(escaped)
			out.WriteString("\n")
		} else {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	result := out.String()

	result = replaceDelimited(result, "`", "<code>", "</code>")
	result = replaceDelimited(result, "**", "<strong>", "</strong>")
	result = strings.ReplaceAll(result, "\n", "<br/>")

	return result
}

// replaceDelimited replaces occurrences of delim…delim with open+content+close.
// Only complete pairs are replaced; an unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start + len(delim)
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	return b.String()
}
