package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/standinhq/standin/pkg/standin/assist"
	"github.com/standinhq/standin/pkg/standin/channels/whatsapp"
	"github.com/standinhq/standin/pkg/standin/httpapi"
	"github.com/standinhq/standin/pkg/standin/llm"
)

// newServeCmd creates the `standin serve` command that runs the relay.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to WhatsApp and run the stand-in assistant",
		Long: `Start the relay: connect to WhatsApp (scan the QR code on first
run), listen for incoming messages, and serve the HTTP control surface.

Examples:
  standin serve
  standin serve --config ./standin.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── WhatsApp channel ──
	wa := whatsapp.New(cfg.WhatsApp, logger)

	// Render QR codes in the terminal for first-time login.
	qrChan, unsubscribe := wa.SubscribeQR()
	defer unsubscribe()
	go func() {
		for evt := range qrChan {
			switch evt.Type {
			case "code":
				logger.Info("scan the QR code below with WhatsApp")
				qrterminal.GenerateWithConfig(evt.Code, qrterminal.Config{
					Level:     qrterminal.L,
					Writer:    os.Stdout,
					BlackChar: qrterminal.BLACK,
					WhiteChar: qrterminal.WHITE,
					QuietZone: 1,
				})
			default:
				logger.Info(evt.Message)
			}
		}
	}()

	if err := wa.Connect(ctx); err != nil {
		return err
	}

	// ── Responder ──
	chatClient := llm.New(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.Timeout, logger)
	debounce := assist.NewDebouncer(cfg.ReplyDelay, logger)
	inflight := assist.NewInflightRegistry()
	responder := assist.NewResponder(cfg, store, debounce, inflight, chatClient, wa, logger)
	go responder.Run(ctx, wa.Receive())

	// ── Control surface ──
	api := httpapi.New(httpapi.Config{
		Address:   cfg.HTTP.Address,
		AuthToken: cfg.HTTP.AuthToken,
	}, store, responder, logger)
	if err := api.Start(ctx); err != nil {
		return err
	}

	// ── Retention ──
	var retention *assist.Retention
	if pruner, ok := store.(assist.Pruner); ok {
		retention = assist.NewRetention(cfg.Retention, pruner, logger)
	}
	if retention != nil {
		if err := retention.Start(); err != nil {
			logger.Error("failed to start retention job", "error", err)
		}
	}

	logger.Info("standin running, press Ctrl+C to stop",
		"model", cfg.LLM.Model,
		"reply_delay", debounce.Delay(),
		"available", store.Available(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		if retention != nil {
			retention.Stop()
		}
		api.Stop()
		responder.Stop()
		wa.Disconnect()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}
