package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/folders"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags of folders and music items",
	Long: `Manage tags of folders and music items.

An item inherits every tag of its enclosing folders; a tag set on the item,
or on a closer folder, overrides it. Values that parse as integers are
stored as integers, an empty value stores a flag.`,
}

func parseOwner(kind, id string) (folders.Owner, error) {
	switch kind {
	case "item":
		n, err := parseID(id, "item")
		return folders.ItemOwner(n), err
	case "folder":
		n, err := parseID(id, "folder")
		return folders.FolderOwner(n), err
	}
	return folders.Owner{}, fmt.Errorf("tag owner must be item or folder, not %q", kind)
}

var tagSetCmd = &cobra.Command{
	Use:   "set <item|folder> <id> <name> [value]",
	Short: "Set a tag",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0], args[1])
		if err != nil {
			return err
		}
		value := folders.FlagValue()
		if len(args) == 4 {
			value = folders.ParseTagValue(args[3])
		}
		return withApp(func(a *app) error {
			return a.h.SetTag(owner, args[2], value)
		})
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "rm <item|folder> <id> <name>",
	Short: "Remove a tag",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.h.DeleteTag(owner, args[2])
		})
	},
}

var tagListCmd = &cobra.Command{
	Use:   "ls <item|folder> <id>",
	Short: "List tags; for items the effective, inherited tags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			if owner.IsItem() {
				return printTags(a, owner.ID())
			}
			tags, err := a.h.Tags(owner)
			if err != nil {
				return err
			}
			for _, t := range folders.SortedTags(tags) {
				fmt.Printf("  %-12s %s\n", t.Name, t.Value)
			}
			return nil
		})
	},
}

// printTags prints the effective tags of an item
func printTags(a *app, itemID int64) error {
	tags, err := a.h.EffectiveTags(itemID)
	if err != nil {
		return err
	}
	for _, t := range folders.SortedTags(tags) {
		fmt.Printf("  %-12s %s\n", t.Name, t.Value)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagSetCmd, tagRemoveCmd, tagListCmd)
}
