package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mqttmsgr",
		Short: "Real-time messaging client over MQTT on WebSocket",
		Long: `mqttmsgr keeps a session connected to the messaging broker,
subscribes to the real-time topics and logs the events it receives.

Run it in the foreground with "run" or install it as a system service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configFlag string
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path of config file")

	rootCmd.AddCommand(
		runCmd(&configFlag),
		serviceCmd(&configFlag),
		topicsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func execDir() (string, error) {
	ePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	dir, _ := filepath.Split(ePath)
	return dir, nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

func openLogFile(dir string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, "mqttmsgr.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
