package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/kinchat-server/internal/client"
	"github.com/vovakirdan/kinchat-server/internal/log"
	"github.com/vovakirdan/kinchat-server/internal/proto"
)

var (
	mine    = color.New(color.FgCyan)
	theirs  = color.New(color.FgGreen)
	notice  = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

func newChatCmd(g *globalFlags) *cobra.Command {
	var peerID int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with one user interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), g, peerID)
		},
	}
	cmd.Flags().Int64Var(&peerID, "to", 0, "user ID to chat with")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runChat(parent context.Context, g *globalFlags, peerID int64) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, auth, err := signIn(ctx, g)
	if err != nil {
		return err
	}
	me := auth.User.ID

	m := client.NewManager(client.Options{
		URL:    wsURL(g.server),
		UserID: me,
		Token:  auth.Token,
		Logger: log.New(g.logLevel, "console"),
	})
	timeline := client.NewTimeline(me, peerID)
	defer timeline.Bind(m)()

	m.OnMessage(func(msg proto.Message) {
		if msg.SenderID != peerID {
			notice.Printf("* new message from user %d\n", msg.SenderID)
			return
		}
		printMessage(me, msg)
		_ = m.MarkRead(ctx, msg.ID, msg.SenderID)
	})
	m.OnMessageRead(func(r proto.MessageReadStatus) {
		notice.Printf("* read %s\n", r.MessageID)
	})
	m.OnTyping(func(ts proto.TypingStatus) {
		if ts.UserID != peerID {
			return
		}
		if ts.IsTyping {
			notice.Println("* typing...")
		}
	})
	m.OnUserStatus(func(c proto.UserStatusChange) {
		if c.UserID == peerID {
			notice.Printf("* user %d is %s\n", c.UserID, c.Status)
		}
	})
	m.OnInitialOnlineUsers(func(ids []int64) {
		notice.Printf("* online: %v\n", ids)
	})
	m.OnError(func(e proto.Error) {
		failure.Printf("! %s: %s\n", e.Code, e.Msg)
	})
	m.OnStateChange(func(s client.State) {
		notice.Printf("* %s\n", s)
		if s == client.StateDisconnected {
			stop()
		}
	})

	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Close()

	history, err := api.History(ctx, peerID, 50, time.Time{})
	if err != nil {
		failure.Printf("! history: %v\n", err)
	}
	timeline.Merge(history...)
	for _, msg := range timeline.Messages() {
		printMessage(me, msg)
	}

	fmt.Printf("Signed in as %s (id %d), chatting with user %d.\n", auth.User.Username, me, peerID)
	fmt.Println("Type messages and press Enter to send. /quit or Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case "/quit":
				return m.Logout(ctx)
			}
			_ = m.SendTyping(ctx, peerID, true)
			if err := m.Send(ctx, peerID, text); err != nil {
				failure.Printf("! send: %v\n", err)
			}
			_ = m.SendTyping(ctx, peerID, false)
		}
	}
}

func printMessage(me int64, msg proto.Message) {
	at := time.UnixMilli(msg.CreatedAt).Format("15:04:05")
	if msg.SenderID == me {
		mark := " "
		if msg.Read {
			mark = "✓"
		}
		mine.Printf("[%s] me %s %s\n", at, mark, msg.Text)
		return
	}
	theirs.Printf("[%s] %d: %s\n", at, msg.SenderID, msg.Text)
}
