package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Manage playlists",
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Find or create a playlist by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.lib.CreatePlaylist(args[0])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <playlist-id> <item-id>...",
	Short: "Append music items to a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, err := parseID(args[0], "playlist")
		if err != nil {
			return err
		}
		items := make([]int64, 0, len(args)-1)
		for _, arg := range args[1:] {
			id, err := parseID(arg, "item")
			if err != nil {
				return err
			}
			items = append(items, id)
		}
		return withApp(func(a *app) error {
			return a.db.Batch(func() error {
				for _, id := range items {
					if err := a.lib.AddToPlaylist(playlistID, id); err != nil {
						return err
					}
				}
				return nil
			})
		})
	},
}

var playlistListCmd = &cobra.Command{
	Use:   "ls [playlist-id]",
	Short: "List playlists, or the items of one playlist",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if len(args) == 0 {
				playlists, err := a.lib.Playlists()
				if err != nil {
					return err
				}
				for _, p := range playlists {
					fmt.Printf("  %-6d %s\n", p.ID, p.Name)
				}
				return nil
			}

			playlistID, err := parseID(args[0], "playlist")
			if err != nil {
				return err
			}
			items, err := a.lib.PlaylistItems(playlistID)
			if err != nil {
				return err
			}
			for _, id := range items {
				caption, err := a.lib.ItemCaption(id)
				if err != nil {
					return err
				}
				fmt.Printf("  %-6d %s\n", id, caption)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistCreateCmd, playlistAddCmd, playlistListCmd)
}
