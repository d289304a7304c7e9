package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/util"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage the folder tree",
}

var folderAddCmd = &cobra.Command{
	Use:   "add <parent-id> <name>",
	Short: "Find or create a child folder (the root is 0)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		typeName, _ := cmd.Flags().GetString("type")
		typ, err := folders.ParseFolderType(typeName)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			id, err := a.h.FindOrCreateChild(parent, args[1], typ)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var folderListCmd = &cobra.Command{
	Use:   "ls [folder-id]",
	Short: "List child folders and items of a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := folders.RootID
		if len(args) == 1 {
			var err error
			if id, err = parseID(args[0], "folder"); err != nil {
				return err
			}
		}
		return withApp(func(a *app) error {
			names, err := a.h.ChainNames(id)
			if err != nil {
				return err
			}
			fmt.Printf("/%s\n", strings.Join(names, "/"))

			children, err := a.h.Children(id)
			if err != nil {
				return err
			}
			for _, f := range children {
				fmt.Printf("  %-6d %-8s %s/\n", f.ID, f.Type, f.Name)
			}

			items, err := a.lib.ItemsInFolder(id)
			if err != nil {
				return err
			}
			for _, itemID := range items {
				caption, err := a.lib.ItemCaption(itemID)
				if err != nil {
					return err
				}
				fmt.Printf("  %-6d %-8s %s\n", itemID, "item", caption)
			}
			return nil
		})
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <folder-id> <name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.h.SetName(id, args[1])
		})
	},
}

var folderTypeCmd = &cobra.Command{
	Use:   "type <folder-id> <generic|artist|album>",
	Short: "Change the type of a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		typ, err := folders.ParseFolderType(args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.h.SetType(id, typ)
		})
	},
}

var folderMoveCmd = &cobra.Command{
	Use:   "mv <folder-id> <new-parent-id>",
	Short: "Move a folder under another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		parent, err := parseID(args[1], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.h.Move(id, parent)
		})
	},
}

var folderCoverCmd = &cobra.Command{
	Use:   "cover <folder-id> [image]",
	Short: "Set the cover image of a folder, or clear it with --clear",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		clearCover, _ := cmd.Flags().GetBool("clear")
		if !clearCover && len(args) != 2 {
			return fmt.Errorf("an image is required unless --clear is given")
		}
		return withApp(func(a *app) error {
			if clearCover {
				return a.lib.ClearFolderCover(id)
			}
			fileID, err := a.lib.SetFolderCover(context.Background(), id, args[1])
			if err != nil {
				return err
			}
			util.SuccessLog("Cover stored as file %d", fileID)
			return nil
		})
	},
}

var folderDescribeCmd = &cobra.Command{
	Use:   "describe <folder-id> [text]",
	Short: "Set or show the description of a folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "folder")
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			if len(args) == 1 {
				text, ok, err := a.lib.FolderDescription(id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("folder %d has no description: %w", id, util.ErrNotFound)
				}
				fmt.Println(text)
				return nil
			}
			_, err := a.lib.SaveFolderDescription(id, args[1])
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderAddCmd, folderListCmd, folderRenameCmd, folderTypeCmd,
		folderMoveCmd, folderCoverCmd, folderDescribeCmd)

	folderAddCmd.Flags().String("type", "generic", "folder type: generic, artist or album")
	folderCoverCmd.Flags().Bool("clear", false, "remove the current cover")
}
