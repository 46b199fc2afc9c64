package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/tally/internal/config"
	"github.com/zulandar/tally/internal/dashboard"
	"github.com/zulandar/tally/internal/db"
	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/report"
	"github.com/zulandar/tally/internal/report/sheets"
	"github.com/zulandar/tally/internal/telegraph"
	"github.com/zulandar/tally/internal/telegraph/console"
	discordadapter "github.com/zulandar/tally/internal/telegraph/discord"
	slackadapter "github.com/zulandar/tally/internal/telegraph/slack"
	"github.com/zulandar/tally/internal/telegraph/telegram"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tally bot",
		Long:  "Connects to the configured chat platform and runs the intake conversation until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tally config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := createStore(ctx, cfg)
	if err != nil {
		return err
	}
	counter := report.NewCounter(store.sink)

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	registry := intake.NewRegistry(intake.Env{Password: cfg.Password})

	daemon, err := telegraph.NewDaemon(telegraph.DaemonOpts{
		Adapter:  adapter,
		Registry: registry,
		Sink:     counter,
		Stats:    counter,
		Digest:   cfg.Digest,
		Out:      cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if cfg.Dashboard.Port > 0 {
		opts := dashboard.StartOpts{
			Sessions: registry,
			Stats:    counter,
			Port:     cfg.Dashboard.Port,
			Out:      cmd.OutOrStdout(),
		}
		if store.records != nil {
			opts.Records = store.records
		}
		go func() {
			if err := dashboard.Start(ctx, opts); err != nil {
				log.Printf("tally: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}

// store is the configured report sink plus, for the SQL backend, the table
// it writes to.
type store struct {
	sink    report.Sink
	records *db.TableSink
}

// createStore builds the report sink for the configured backend.
func createStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSheets:
		sink, err := sheets.New(ctx, sheets.SinkOpts{
			SpreadsheetID:   cfg.Storage.Sheets.SpreadsheetID,
			Sheet:           cfg.Storage.Sheets.Sheet,
			CredentialsFile: cfg.Storage.Sheets.CredentialsFile,
		})
		if err != nil {
			return store{}, err
		}
		return store{sink: sink}, nil

	case config.BackendSQL:
		table, err := openTable(cfg.Storage.SQL)
		if err != nil {
			return store{}, err
		}
		return store{sink: table, records: table}, nil

	default:
		return store{}, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// openTable connects to the SQL store, migrates it, and returns the sink for
// the configured sheet.
func openTable(cfg config.SQLConfig) (*db.TableSink, error) {
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return db.NewTableSink(gormDB, cfg.Sheet)
}

// createAdapter builds a platform adapter from the config. Slack digest
// channels are registered in the adapter's directory and appended to
// cfg.Digest.Chats.
func createAdapter(cfg *config.Config) (telegraph.Adapter, error) {
	switch cfg.Platform {
	case config.PlatformTelegram:
		return telegram.New(telegram.AdapterOpts{Token: cfg.Telegram.Token})
	case config.PlatformDiscord:
		return discordadapter.New(discordadapter.AdapterOpts{BotToken: cfg.Discord.BotToken})
	case config.PlatformSlack:
		dir := telegraph.NewChatDirectory()
		for _, ch := range cfg.Slack.DigestChannels {
			cfg.Digest.Chats = append(cfg.Digest.Chats, dir.ChatID(ch))
		}
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			Directory: dir,
		})
	case config.PlatformConsole:
		return console.New(console.AdapterOpts{
			In:     os.Stdin,
			Out:    os.Stdout,
			ChatID: cfg.Console.ChatID,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
