package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "heist",
	Short: "Heist is a capture-the-flag puzzle server",
	Long: `A bank heist capture-the-flag game. Players solve puzzles to earn reward
flags, register them in their session and open the vault once every flag is
collected.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
