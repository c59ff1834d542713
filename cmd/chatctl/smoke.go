package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/kinchat-server/internal/client"
	"github.com/vovakirdan/kinchat-server/internal/proto"
)

func newSmokeCmd(g *globalFlags) *cobra.Command {
	var (
		peerID  int64
		text    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Connect, send one message and wait for the server ack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()
			return runSmoke(ctx, g, peerID, text)
		},
	}
	cmd.Flags().Int64Var(&peerID, "to", 0, "receiver user ID")
	cmd.Flags().StringVar(&text, "text", "hello from smoke test", "message text to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runSmoke(ctx context.Context, g *globalFlags, peerID int64, text string) error {
	_, auth, err := signIn(ctx, g)
	if err != nil {
		return err
	}

	m := client.NewManager(client.Options{URL: wsURL(g.server), UserID: auth.User.ID, Token: auth.Token})
	acked := make(chan proto.Message, 1)
	failed := make(chan proto.Error, 1)
	snapshot := make(chan []int64, 1)
	m.OnMessageSent(func(msg proto.Message) {
		select {
		case acked <- msg:
		default:
		}
	})
	m.OnError(func(e proto.Error) {
		select {
		case failed <- e:
		default:
		}
	})
	m.OnInitialOnlineUsers(func(ids []int64) {
		select {
		case snapshot <- ids:
		default:
		}
	})

	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Close()

	select {
	case ids := <-snapshot:
		notice.Printf("online: %v\n", ids)
	case <-ctx.Done():
		return errors.New("no initial_online_users received")
	}

	if err := m.Send(ctx, peerID, text); err != nil {
		return err
	}

	select {
	case msg := <-acked:
		mine.Printf("message_sent: id=%s receiver=%d text=%q serverTimestamp=%d\n",
			msg.ID, msg.ReceiverID, msg.Text, msg.ServerTimestamp)
		return nil
	case e := <-failed:
		return fmt.Errorf("server error %s: %s", e.Code, e.Msg)
	case <-ctx.Done():
		return fmt.Errorf("waiting for ack: %w", ctx.Err())
	}
}
