// missionctl is a small operator console for the mission store: it signs in,
// follows the mission list live, and can create a mission, set a field or
// print a remote-signing link.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/athmos-ops/missionsync/pkg/config"
	"github.com/athmos-ops/missionsync/pkg/connection"
	"github.com/athmos-ops/missionsync/pkg/logger"
	"github.com/athmos-ops/missionsync/pkg/missions"
	"github.com/athmos-ops/missionsync/pkg/session"
	"github.com/athmos-ops/missionsync/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "missionctl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var (
		storeURL = flag.String("store", cfg.StoreURL, "websocket endpoint of the mission store")
		user     = flag.String("user", "", "store username")
		pass     = flag.String("pass", "", "store password")
		create   = flag.Bool("create", false, "create a mission and follow it")
		title    = flag.String("title", "", "set the title of the created mission")
		debug    = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	log := logger.FromZerolog(zl)

	if *user == "" || *pass == "" {
		return fmt.Errorf("both -user and -pass are required")
	}

	u, err := url.Parse(*storeURL)
	if err != nil {
		return fmt.Errorf("invalid store url: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connCfg := connection.NewConfig(u)
	connCfg.Logger = log
	connCfg.Timeout = cfg.RPCTimeout

	conn := connection.NewReconnecting(
		func(ctx context.Context) (*connection.WebSocketConnection, error) {
			return connection.NewWebSocketConnection(connCfg), nil
		},
		cfg.ReconnectInterval,
		log,
	)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	cl := store.New(conn, log)
	gateway := session.NewGateway(cl, log)

	identity, err := gateway.SignIn(ctx, *user, *pass)
	if err != nil {
		return err
	}
	log.Info("signed in", "uid", identity.UID)

	// Replay the session after any reconnect so the live subscription can
	// reopen under the same identity.
	conn.OnReconnect(gateway.Resume)

	dispatcher := missions.NewDispatcher(missions.DispatcherConfig{
		Sender: cl,
		Logger: log,
		OnError: func(missionID, field string, err error) {
			fmt.Fprintf(os.Stderr, "edit to %s.%s was not saved: %v\n", missionID, field, err)
		},
	})
	defer dispatcher.Close()

	sync := missions.NewSynchronizer(missions.SynchronizerConfig{
		Store:      cl,
		Logger:     log,
		Dispatcher: dispatcher,
		OnChange: func(set []missions.Mission) {
			fmt.Printf("--- %d mission(s)\n", len(set))
			for _, m := range set {
				fmt.Printf("  %-14s %-20s %s\n", m.Ref, m.Title, m.Date)
			}
		},
	})
	if err := sync.Start(ctx, identity); err != nil {
		return fmt.Errorf("starting synchronizer: %w", err)
	}
	defer sync.Stop()

	if *create {
		m, err := missions.CreateMission(ctx, cl, identity)
		if err != nil {
			return err
		}
		dispatcher.Open(m)
		log.Info("mission created", "id", m.ID, "ref", m.Ref)

		if *title != "" {
			if err := dispatcher.ApplyField(missions.FieldTitle, *title); err != nil {
				return err
			}
		}

		link := missions.SigningLink(cfg.AppOrigin, cfg.SignPath, identity.UID, m.ID)
		fmt.Println("signing link:", link)
		fmt.Println("qr image:", missions.QRImageURL(cfg.QRService, cfg.QRSize, link))
	}

	<-ctx.Done()
	return nil
}
