package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/util"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage music items and their files",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <folder-id> <name> [music-file]",
	Short: "Create a music item, optionally importing its music file",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			id, err := a.lib.CreateItem(folderID, args[1])
			if err != nil {
				return err
			}
			if len(args) == 3 {
				if _, err := a.lib.ImportMusicFile(context.Background(), id, args[2]); err != nil {
					return err
				}
			}
			fmt.Println(id)
			return nil
		})
	},
}

var itemImportCmd = &cobra.Command{
	Use:   "import <item-id> <music-file>",
	Short: "Copy a music file into the storage root for an item",
	Long: `Copy a music file into the storage root at the item's canonical path.

Tags embedded in the file (title, track, year, genre) are added to the item
when it does not carry them yet.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			fileID, err := a.lib.ImportMusicFile(context.Background(), id, args[1])
			if err != nil {
				return err
			}
			p, err := a.reg.Resolve(fileID)
			if err != nil {
				return err
			}
			util.SuccessLog("Stored %s", p)
			return nil
		})
	},
}

var itemRenameCmd = &cobra.Command{
	Use:   "rename <item-id> <name>",
	Short: "Rename a music item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.lib.SetItemName(id, args[1])
		})
	},
}

var itemMoveCmd = &cobra.Command{
	Use:   "mv <item-id> <folder-id>",
	Short: "Move a music item to another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		folderID, err := parseID(args[1], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.lib.MoveItem(id, folderID)
		})
	},
}

var itemRemoveCmd = &cobra.Command{
	Use:   "rm <item-id>",
	Short: "Delete a music item with its music and lyrics files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.lib.DeleteItem(id)
		})
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show a music item with its effective tags and files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "item")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			caption, err := a.lib.ItemCaption(id)
			if err != nil {
				return err
			}
			fmt.Printf("%d  %s\n", id, caption)

			if err := printTags(a, id); err != nil {
				return err
			}

			mf, ok, err := a.lib.MusicFile(id)
			if err != nil {
				return err
			}
			if ok {
				p, err := a.reg.Resolve(mf.FileID)
				if err != nil {
					return err
				}
				fmt.Printf("  music   %s (%s)\n", p, mf.Type)
			}

			lyrics, err := a.lib.LyricsForItem(id)
			if err != nil {
				return err
			}
			for _, ly := range lyrics {
				p, err := a.reg.Resolve(ly.FileID)
				if err != nil {
					return err
				}
				fmt.Printf("  lyrics  %s [%s]\n", p, ly.Lang)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemAddCmd, itemImportCmd, itemRenameCmd, itemMoveCmd, itemRemoveCmd, itemShowCmd)
}
