package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/pairwise/internal/handler"
	appI18n "github.com/pavelanni/pairwise/internal/i18n"
	"github.com/pavelanni/pairwise/internal/llm"
	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/pairing"
	"github.com/pavelanni/pairwise/internal/roster"
	"github.com/pavelanni/pairwise/internal/store"
	"github.com/pavelanni/pairwise/internal/trend"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pairwise",
		Short: "Peer-learning pair generator and performance trend analyzer",
	}

	serve := serveCmd()
	root.AddCommand(serve, pairCmd(), regenerateCmd(), sessionCmd(), trendsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `pairwise --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default language for error messages (en, ru)")
	addStoreFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair the students of a roster file",
		RunE:  runPair,
	}
	f := cmd.Flags()
	f.StringP("roster", "r", "", "Roster file (.csv or .json)")
	f.StringP("strategy", "s", string(model.StrategyOptimal), "Pairing strategy (optimal, balanced, random, ai)")
	f.String("subject", "", "Class subject passed to the AI collaborator")
	f.String("grade", "", "Class grade passed to the AI collaborator")
	f.StringSlice("goal", nil, "Pairing goals for the AI collaborator (repeatable)")
	f.Bool("save", false, "Record the pairing in the store")
	f.String("session", "", "Session id the recorded pairing belongs to")
	addOutputFlags(f)
	addStoreFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func regenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate a recorded pairing with a different strategy",
		RunE:  runRegenerate,
	}
	f := cmd.Flags()
	f.StringP("pairing", "p", "", "Pairing record id")
	f.Bool("save", false, "Record the new pairing in the store")
	addOutputFlags(f)
	addStoreFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("pairing")
	return cmd
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage performance sessions",
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: "Store a roster file as a performance session",
		RunE:  runSessionImport,
	}
	f := imp.Flags()
	f.StringP("roster", "r", "", "Roster file (.csv or .json)")
	f.String("class", "", "Class name")
	f.String("subject", "", "Subject")
	f.String("name", "", "Session name (default: generated from the upload time)")
	addOutputFlags(f)
	addStoreFlags(f)
	addLogFlags(f)
	_ = imp.MarkFlagRequired("roster")
	_ = imp.MarkFlagRequired("class")
	_ = imp.MarkFlagRequired("subject")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE:  runSessionList,
	}
	addStoreFlags(list.Flags())
	addLogFlags(list.Flags())

	cmd.AddCommand(imp, list)
	return cmd
}

func trendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Compare two sessions and evaluate the pairs used between them",
		RunE:  runTrends,
	}
	f := cmd.Flags()
	f.String("previous", "", "Previous session id")
	f.String("current", "", "Current session id")
	f.StringSlice("pairing", nil, "Pairing record ids to evaluate (default: latest pairing of the previous session)")
	addOutputFlags(f)
	addStoreFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("previous")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("store", "pairwise.db", "Store DSN: SQLite path, redis:// URL or memory")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", llm.ProviderNone, "AI collaborator provider (none, openai, anthropic)")
	f.String("llm-url", "", "Provider API base URL (empty for the provider default)")
	f.String("llm-key", "", "Provider API key")
	f.String("llm-model", "", "Model name (empty for the provider default)")
	f.Duration("ai-timeout", 30*time.Second, "Time limit for one AI pairing request")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addOutputFlags(f *pflag.FlagSet) {
	f.StringP("format", "f", "json", "Output format (json, text)")
	f.StringP("lang", "l", "en", "Language for text output (en, ru)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAIRWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("pairwise")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/pairwise")
	v.AddConfigPath("/etc/pairwise")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, dsn string) (*store.Store, error) {
	kv, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store.New(kv), nil
}

// newEngine builds the pairing engine with the configured AI collaborator.
// A collaborator that fails its health check is still used; the ai strategy
// falls back per request.
func newEngine(ctx context.Context, v *viper.Viper) (*pairing.Engine, error) {
	c, err := llm.NewCollaborator(llm.Config{
		Provider: strings.ToLower(v.GetString("llm-provider")),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
	})
	if err != nil {
		return nil, fmt.Errorf("create AI collaborator: %w", err)
	}
	if p, ok := c.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, ai strategy will fall back on errors", "error", err)
		} else {
			slog.Info("LLM endpoint OK", "provider", v.GetString("llm-provider"), "model", v.GetString("llm-model"))
		}
	}
	return pairing.NewEngine(c, pairing.WithAITimeout(v.GetDuration("ai-timeout"))), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg := model.ServerConfig{
		Addr:        v.GetString("addr"),
		StoreDSN:    v.GetString("store"),
		LLMProvider: v.GetString("llm-provider"),
		AITimeout:   v.GetDuration("ai-timeout"),
	}

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	engine, err := newEngine(ctx, v)
	if err != nil {
		return err
	}

	h := handler.New(db, engine)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	slog.Info("starting server",
		"addr", cfg.Addr,
		"store", cfg.StoreDSN,
		"llm_provider", cfg.LLMProvider,
		"ai_timeout", cfg.AITimeout,
		"lang", lang,
	)
	return http.ListenAndServe(cfg.Addr, r)
}

func runPair(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v)
	if err != nil {
		return err
	}

	students, err := roster.Load(v.GetString("roster"))
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	engine, err := newEngine(ctx, v)
	if err != nil {
		return err
	}
	res, err := engine.Generate(ctx, students, pairing.Options{
		Strategy: model.Strategy(strings.ToLower(v.GetString("strategy"))),
		ClassContext: model.ClassContext{
			Subject: v.GetString("subject"),
			Grade:   v.GetString("grade"),
		},
		PairingGoals: v.GetStringSlice("goal"),
	})
	if err != nil {
		return fmt.Errorf("generate pairs: %w", err)
	}

	rec := pairing.NewRecord(v.GetString("session"), students, res, time.Now())
	if v.GetBool("save") {
		if err := saveRecord(ctx, v, rec); err != nil {
			return err
		}
	}
	return output(cmd.OutOrStdout(), v, rec, func(w io.Writer) error {
		return renderPairing(ctx, w, rec)
	})
}

func runRegenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, v.GetString("store"))
	if err != nil {
		return err
	}
	defer db.Close()

	prev, err := db.GetPairing(ctx, v.GetString("pairing"))
	if err != nil {
		return err
	}

	engine, err := newEngine(ctx, v)
	if err != nil {
		return err
	}
	res, err := engine.Regenerate(ctx, prev.Roster, prev.Pairs, pairing.Options{CurrentStrategy: prev.Strategy})
	if err != nil {
		return fmt.Errorf("regenerate pairs: %w", err)
	}

	rec := pairing.NewRecord(prev.SessionID, prev.Roster, res, time.Now())
	if v.GetBool("save") {
		if err := db.SavePairing(ctx, rec); err != nil {
			return fmt.Errorf("save pairing: %w", err)
		}
		slog.Info("pairing saved", "id", rec.ID)
	}
	return output(cmd.OutOrStdout(), v, rec, func(w io.Writer) error {
		return renderPairing(ctx, w, rec)
	})
}

func runSessionImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v)
	if err != nil {
		return err
	}

	students, err := roster.Load(v.GetString("roster"))
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	sess, err := trend.NewSession(students, trend.SessionInfo{
		ClassName:   v.GetString("class"),
		Subject:     v.GetString("subject"),
		SessionName: v.GetString("name"),
	}, time.Now())
	if err != nil {
		return err
	}

	db, err := openStore(ctx, v.GetString("store"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	slog.Info("session imported", "id", sess.ID, "students", len(sess.Students))

	return output(cmd.OutOrStdout(), v, sess, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, appI18n.Td(ctx, "SavedSession", map[string]any{"ID": sess.ID}))
		return err
	})
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v.GetString("store"))
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.ListSessions(ctx)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), sessions)
}

func runTrends(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, v.GetString("store"))
	if err != nil {
		return err
	}
	defer db.Close()

	prev, err := db.GetSession(ctx, v.GetString("previous"))
	if err != nil {
		return err
	}
	cur, err := db.GetSession(ctx, v.GetString("current"))
	if err != nil {
		return err
	}
	history, err := db.PairingHistory(ctx, prev.ID, v.GetStringSlice("pairing"))
	if err != nil {
		return err
	}

	report := trend.Analyze(prev, cur, history, time.Now())
	return output(cmd.OutOrStdout(), v, report, func(w io.Writer) error {
		return renderReport(ctx, w, prev, cur, report)
	})
}

// localized initializes translations for --lang and returns a context
// carrying the matching localizer.
func localized(ctx context.Context, v *viper.Viper) (context.Context, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang)), nil
}

func saveRecord(ctx context.Context, v *viper.Viper, rec model.PairingRecord) error {
	db, err := openStore(ctx, v.GetString("store"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SavePairing(ctx, rec); err != nil {
		return fmt.Errorf("save pairing: %w", err)
	}
	slog.Info("pairing saved", "id", rec.ID)
	return nil
}

// output writes v as indented JSON, or through text when --format is text.
func output(w io.Writer, v *viper.Viper, value any, text func(io.Writer) error) error {
	switch strings.ToLower(v.GetString("format")) {
	case "text":
		return text(w)
	case "json", "":
		return writeJSON(w, value)
	default:
		return fmt.Errorf("unknown output format %q", v.GetString("format"))
	}
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
