package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/embedding"
	"github.com/gisa-chat/server/internal/retrieval"
	"github.com/gisa-chat/server/internal/server"
	"github.com/gisa-chat/server/internal/transport"
	"github.com/gisa-chat/server/internal/vectorstore"
	logx "github.com/gisa-chat/server/pkg/logger"
)

func setup() (*AppConfig, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.env(), Level: cfg.LogLevel})
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat turns over HTTP and, when NATS_URL is set, NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		timeout, _ := cfg.turnTimeout()
		g, gctx := errgroup.WithContext(ctx)

		httpServer := server.New(server.Config{Addr: cfg.Server.HTTPAddr, TurnTimeout: timeout}, app.Runner, app.Recorder, app.Metrics)
		g.Go(func() error { return httpServer.Run(gctx) })

		if cfg.Server.NatsURL != "" {
			nt, err := transport.NewNATSTransport(transport.Config{
				URL:     cfg.Server.NatsURL,
				Subject: cfg.Server.NatsSubject,
				Name:    "gisa-chat",
				Workers: cfg.Server.NatsWorkers,
				// a turn already running gets its full timeout to reply
				ShutdownGrace: timeout,
			}, transport.NewResponder(app.Runner, timeout))
			if err != nil {
				stop()
				_ = g.Wait()
				return err
			}
			g.Go(func() error { return nt.Run(gctx) })
		}

		return g.Wait()
	},
}

var askFlags struct {
	sender   string
	asl      string
	uoc      string
	username string
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run a single turn and print the response as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		app, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		timeout, _ := cfg.turnTimeout()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := app.Runner.Invoke(ctx, model.ChatRequest{
			Sender:  askFlags.sender,
			Message: strings.Join(args, " "),
			Metadata: &model.Metadata{
				ASL:      askFlags.asl,
				UOC:      askFlags.uoc,
				Username: askFlags.username,
			},
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every plan into the vector index used by semantic search",
	Long: `index embeds plan titles, descriptions and activities and upserts them into
VECTOR_STORE_PATH. The store is opened exclusively, so stop serve first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		app := &App{Config: cfg}
		defer app.Close()
		data, err := openDataset(ctx, cfg, app)
		if err != nil {
			return err
		}
		docs, err := planDocuments(ctx, data)
		if err != nil {
			return err
		}

		enc, err := embedding.NewGenAIEncoder(ctx, cfg.APIKey, cfg.Embedding.Model, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return err
		}
		store, err := vectorstore.Open(ctx, cfg.Vector.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := retrieval.NewIndexer(enc, store).Index(ctx, docs)
		if err != nil {
			return fmt.Errorf("indexed %d of %d plans: %w", n, len(docs), err)
		}
		logx.Info().Int("documents", n).Str("path", cfg.Vector.Path).Msg("Vector index updated")
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d plans into %s\n", n, cfg.Vector.Path)
		return nil
	},
}

// planDocuments renders one document per plan; search results point back
// to the plan through the piano_code metadata key.
func planDocuments(ctx context.Context, data model.Dataset) ([]retrieval.Document, error) {
	piani, err := data.Piani(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]retrieval.Document, 0, len(piani))
	for _, p := range piani {
		acts, err := data.PianoActivities(ctx, p.Code)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Piano %s - %s. %s", p.Code, p.Title, p.Description)
		for i, a := range acts {
			if i == 0 {
				b.WriteString(" Attività: ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(a.Activity)
		}
		docs = append(docs, retrieval.Document{
			ID:       "piano:" + p.Code,
			Content:  b.String(),
			Metadata: map[string]any{"piano_code": p.Code, "area": p.Area},
		})
	}
	return docs, nil
}

func init() {
	askCmd.Flags().StringVar(&askFlags.sender, "sender", "cli", "sender id used for the turn log")
	askCmd.Flags().StringVar(&askFlags.asl, "asl", "", "ASL of the user")
	askCmd.Flags().StringVar(&askFlags.uoc, "uoc", "", "UOC of the user")
	askCmd.Flags().StringVar(&askFlags.username, "username", "", "display name of the user")
}

