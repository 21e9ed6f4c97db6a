package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/RoanBrand/mqttmsgr/events"
	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newService(configFlag string) (service.Service, error) {
	eDir, err := execDir()
	if err != nil {
		return nil, err
	}

	// Set defaults before config override.
	if service.Interactive() {
		log.SetLevel(log.DebugLevel)
	} else {
		f, err := openLogFile(eDir)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
	}

	args := []string{"run"}
	if configFlag != "" {
		args = append(args, "-c", configFlag)
	}

	prg := &program{configFlag: configFlag, execDir: eDir}
	svcConfig := service.Config{
		Name:        "mqttmsgr",
		DisplayName: "mqttmsgr messaging client",
		Description: "Keeps a real-time messaging session connected and logs its events.",
		Arguments:   args,
	}
	return service.New(prg, &svcConfig)
}

func runCmd(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and log events until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(*configFlag)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}

func serviceCmd(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:       "service <action>",
		Short:     "Control the system service",
		Long:      "Control the system service. Valid actions: " + strings.Join(service.ControlAction[:], ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.ControlAction[:],
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(*configFlag)
			if err != nil {
				return err
			}
			if err := service.Control(s, args[0]); err != nil {
				return fmt.Errorf("%w (valid actions: %q)", err, service.ControlAction)
			}
			return nil
		},
	}
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics <user-id>",
		Short: "Print the topics subscribed to for a user",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range events.SubscribeTopics(args[0]) {
				fmt.Println(t)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}
