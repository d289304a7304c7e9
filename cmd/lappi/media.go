package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/util"
)

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "Manage lyrics of music items",
}

var lyricsSetCmd = &cobra.Command{
	Use:   "set <item-id> <lang> <text-file|->",
	Short: "Store lyrics in a language, reading the text from a file or stdin",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		var text []byte
		if args[2] == "-" {
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(args[2])
		}
		if err != nil {
			return fmt.Errorf("failed to read lyrics: %w", err)
		}
		return withApp(func(a *app) error {
			_, err := a.lib.SaveLyrics(itemID, args[1], string(text))
			return err
		})
	},
}

var lyricsShowCmd = &cobra.Command{
	Use:   "show <item-id> <lang>",
	Short: "Print lyrics",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			text, ok, err := a.lib.LyricsText(itemID, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no %s lyrics for item %d: %w", args[1], itemID, util.ErrNotFound)
			}
			fmt.Print(text)
			return nil
		})
	},
}

var lyricsRemoveCmd = &cobra.Command{
	Use:   "rm <lyrics-id>",
	Short: "Delete lyrics and their file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "lyrics")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.lib.DeleteLyrics(id)
		})
	},
}

var pictureCmd = &cobra.Command{
	Use:   "picture",
	Short: "Manage pictures attached to folders",
}

var pictureAddCmd = &cobra.Command{
	Use:   "add <folder-id> <image>",
	Short: "Copy an image into a folder's pictures",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			id, err := a.lib.ImportPicture(context.Background(), folderID, args[1])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var pictureListCmd = &cobra.Command{
	Use:   "ls <folder-id>",
	Short: "List the pictures of a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			pics, err := a.lib.PicturesInFolder(folderID)
			if err != nil {
				return err
			}
			for _, pic := range pics {
				p, err := a.reg.Resolve(pic.FileID)
				if err != nil {
					return err
				}
				fmt.Printf("  %-6d %s\n", pic.ID, p)
			}
			return nil
		})
	},
}

var pictureRemoveCmd = &cobra.Command{
	Use:   "rm <picture-id>",
	Short: "Delete a picture and its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "picture")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.lib.DeletePicture(id)
		})
	},
}

func init() {
	rootCmd.AddCommand(lyricsCmd, pictureCmd)
	lyricsCmd.AddCommand(lyricsSetCmd, lyricsShowCmd, lyricsRemoveCmd)
	pictureCmd.AddCommand(pictureAddCmd, pictureListCmd, pictureRemoveCmd)
}
