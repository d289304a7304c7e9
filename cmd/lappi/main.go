package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/lappi/internal/config"
	"github.com/franz/lappi/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "lappi",
		Short: "Lappi - a music collection kept in one database and one storage root",
		Long: `lappi keeps a music collection in a SQLite database: a folder hierarchy,
music items with inherited tags, lyrics, pictures and playlists. Every file
the collection owns lives under one storage root at a path derived from the
collection itself, and 'lappi migrate' moves files whenever that path drifts.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lappi.yaml)")
	rootCmd.PersistentFlags().String("db", "lappi.db", "collection database file")
	rootCmd.PersistentFlags().String("root", "library", "storage root for collection files")
	rootCmd.PersistentFlags().Bool("persistent", true, "write files to the storage root (false tracks paths only)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("storage.root", rootCmd.PersistentFlags().Lookup("root"))
	viper.BindPFlag("storage.persistent", rootCmd.PersistentFlags().Lookup("persistent"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		util.WarnLog("%v", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("lappi")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	config.BindEnv(viper.GetViper())

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
