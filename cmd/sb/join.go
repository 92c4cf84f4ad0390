package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/chat"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/status"
	"github.com/zulandar/switchboard/internal/transcript"
	"golang.org/x/term"
)

const quitCommand = "/quit"

func newJoinCmd() *cobra.Command {
	var (
		configPath string
		username   string
		server     string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the group chat",
		Long: `Loads the chat history, connects to the broker and announces you to the room.
Each line read from stdin is sent as a chat message. Type /quit or send EOF to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, configPath, username, server)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to Switchboard config file (defaults are used when empty)")
	cmd.Flags().StringVarP(&username, "user", "u", "", "display name (overrides the config file)")
	cmd.Flags().StringVarP(&server, "server", "s", "", "chat server base URL (overrides the config file)")
	return cmd
}

func runJoin(cmd *cobra.Command, configPath, username, server string) error {
	cfg, err := loadConfig(configPath, server)
	if err != nil {
		return err
	}
	out := &syncWriter{w: cmd.OutOrStdout()}
	lines := readLines(cmd.InOrStdin())
	interactive := isTerminal(cmd.InOrStdin())

	if strings.TrimSpace(username) == "" {
		username = cfg.Username
	}
	if strings.TrimSpace(username) == "" && interactive {
		fmt.Fprint(out, "Username: ")
		username = <-lines
	}

	recorder, diagStore, closeDiag, err := openDiagnostics(cfg.Diagnostics)
	if err != nil {
		return fmt.Errorf("open diagnostics: %w", err)
	}
	defer closeDiag()
	loader, err := newLoader(cfg)
	if err != nil {
		return err
	}
	factory, err := transportFactory(cfg)
	if err != nil {
		return err
	}

	ctrl, err := session.New(session.Opts{
		Loader:    loader,
		Transport: factory,
		Recorder:  recorder,
		Channels: session.Channels{
			Topic: cfg.Channels.Topic,
			Join:  cfg.Channels.Join,
			Chat:  cfg.Channels.Chat,
		},
	})
	if err != nil {
		return err
	}

	store := ctrl.Transcript()
	cancelPrint := store.Subscribe(func(ev transcript.Event) {
		if ev.Seeded {
			printTranscript(out, store.Snapshot())
			return
		}
		fmt.Fprintln(out, chat.Format(ev.Message))
	})
	defer cancelPrint()
	name := strings.TrimSpace(username)
	cancelState := ctrl.OnStateChange(func(tr session.Transition) {
		printTransition(out, tr, name)
	})
	defer cancelState()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Status.Port > 0 {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		opts := status.StartOpts{Session: ctrl, Port: cfg.Status.Port, Out: out}
		if diagStore != nil {
			opts.Diagnostics = diagStore
		}
		go func() {
			if err := status.Start(srvCtx, opts); err != nil {
				log.Printf("join: status server: %v", err)
			}
		}()
	}
	if cfg.Status.ReportSchedule != "" {
		reporter, err := status.NewReporter(status.ReporterOpts{
			Schedule: cfg.Status.ReportSchedule,
			Session:  ctrl,
			Out:      out,
		})
		if err != nil {
			return err
		}
		reporter.Start()
		defer reporter.Stop()
	}

	if err := ctrl.Connect(ctx, username); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	defer ctrl.Disconnect()

	return chatLoop(ctx, ctrl, lines, out, interactive)
}

// chatLoop sends each input line until /quit, EOF or ctx is cancelled.
func chatLoop(ctx context.Context, ctrl *session.Controller, lines <-chan string, out io.Writer, interactive bool) error {
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nLeaving...")
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !ctrl.SendMessage(line) {
				fmt.Fprintf(out, "(not sent: %s)\n", ctrl.State())
			}
		}
	}
}

// readLines feeds r line by line into the returned channel, which is
// closed at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			log.Printf("join: read input: %v", err)
		}
	}()
	return ch
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printTranscript(w io.Writer, msgs []chat.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, chat.Format(m))
	}
}

func printTransition(w io.Writer, tr session.Transition, username string) {
	switch tr.To {
	case session.LoadingHistory:
		fmt.Fprintln(w, "-- loading history...")
	case session.Connecting:
		fmt.Fprintln(w, "-- connecting...")
	case session.Connected:
		fmt.Fprintf(w, "-- connected as %s\n", username)
	case session.Disconnected:
		fmt.Fprintln(w, "-- disconnected")
	case session.Idle:
		if tr.From == session.LoadingHistory {
			fmt.Fprintln(w, "-- history unavailable")
		}
	}
}
