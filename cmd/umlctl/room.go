package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/editor"
	"github.com/umlstudio/engine/internal/export"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/internal/session"
)

var (
	roomID      string
	joinTimeout time.Duration
)

func init() {
	for _, c := range []*cobra.Command{pushCmd, watchCmd} {
		c.Flags().StringVar(&roomID, "room", "", "room to join")
		c.Flags().DurationVar(&joinTimeout, "timeout", 10*time.Second, "how long to wait for the room snapshot")
		_ = c.MarkFlagRequired("room")
		rootCmd.AddCommand(c)
	}
}

var pushCmd = &cobra.Command{
	Use:   "push [file]",
	Short: "Replace a live room's diagram with a file",
	Long: `push joins the room, waits for its current snapshot and then loads the
file as one edit, which every member receives and the server stores.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readDiagram(args[0])
		if err != nil {
			return err
		}
		return pushDiagram(cmd.Context(), roomID, s)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a room and print its diagram as Mermaid on every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		ch := channel()
		defer ch.Close()
		sess := session.New(ch, identity(), session.WithPresence(func(p realtime.Presence) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%d in room)\n", p.Event, p.User.UserName, p.Count)
		}))
		defer sess.Close()

		unsubscribe, err := sess.Watch(func(c editor.Change) {
			if c.Structural {
				fmt.Fprintf(out, "%%%% %s\n%s\n", c.Op, export.Mermaid(c.State))
			}
		})
		if err != nil {
			return err
		}
		defer unsubscribe()

		if err := join(ctx, sess, roomID); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

// join enters roomID and waits for the initial snapshot.
func join(ctx context.Context, sess *session.Session, roomID string) error {
	if err := sess.Join(ctx, roomID); err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	wctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	if err := sess.Await(wctx, func(v session.View) bool { return v.Phase == realtime.Synced }); err != nil {
		return fmt.Errorf("room %s sent no snapshot: %w", roomID, err)
	}
	return nil
}

func pushDiagram(ctx context.Context, roomID string, s diagram.State) error {
	ch := channel()
	sess := session.New(ch, identity())
	if err := join(ctx, sess, roomID); err != nil {
		sess.Close()
		_ = ch.Close()
		return err
	}
	if err := sess.Do(func(ed *editor.Editor) { ed.Load(s) }); err != nil {
		return err
	}
	sess.Close()
	// Close flushes the queued update before hanging up
	return ch.Close()
}
