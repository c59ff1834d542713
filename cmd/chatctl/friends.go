package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFriendsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "List friends and their presence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, _, err := signIn(cmd.Context(), g)
			if err != nil {
				return err
			}
			list, err := api.Friends(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				notice.Println("no friends yet")
				return nil
			}
			for _, f := range list {
				state := failure.Sprint("offline")
				if f.Online {
					state = theirs.Sprint("online")
				}
				fmt.Printf("%-20s %s\n", f.FriendUsername, state)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <userID>",
		Short: "Send a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			api, _, err := signIn(cmd.Context(), g)
			if err != nil {
				return err
			}
			if err := api.SendFriendRequest(cmd.Context(), id); err != nil {
				return err
			}
			notice.Printf("request sent to user %d\n", id)
			return nil
		},
	}

	accept := &cobra.Command{
		Use:   "accept <userID>",
		Short: "Accept a pending friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			api, _, err := signIn(cmd.Context(), g)
			if err != nil {
				return err
			}
			return api.AcceptFriend(cmd.Context(), id)
		},
	}

	cmd.AddCommand(add, accept)
	return cmd
}
