package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Schema migration runs inside initApp, so this command only has to start
// the app and exit. It exists so deploy pipelines can migrate ahead of the
// rollout instead of racing the first serving node.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	Run: func(_ *cobra.Command, _ []string) {
		logrus.Info("[APP] Schema migrations applied.")
		StopApp()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
