// Command netisolatorctl is a demo harness for the network isolator core:
// it drives Prepare/Isolate/Cleanup/Recover from the command line the way a
// containerizer would, against a real state root and (optionally) a real
// CNI plugin and configuration directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"netisolator/pkg/isolator"
	"netisolator/pkg/version"
)

func main() {
	var iso *isolator.Isolator

	app := &cli.App{
		Name:    version.ProgramName,
		Version: version.Version,
		Usage:   "drive the network isolator's Prepare/Isolate/Cleanup/Recover lifecycle from the command line",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "state-root",
				Aliases:  []string{"r"},
				Usage:    "directory this core owns exclusively for on-disk lifecycle state",
				EnvVars:  []string{"NETISOLATOR_STATE_ROOT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "cni-plugin-dir",
				Usage:   "directory containing CNI plugin binaries; leave unset together with --cni-conf-dir for degenerate (host-network-only) mode",
				EnvVars: []string{"NETISOLATOR_CNI_PLUGIN_DIR"},
			},
			&cli.StringFlag{
				Name:    "cni-conf-dir",
				Usage:   "directory containing CNI network configuration files",
				EnvVars: []string{"NETISOLATOR_CNI_CONF_DIR"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logging",
			},
		},

		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

			var err error
			iso, err = isolator.New(isolator.Config{
				StateRootDir: c.String("state-root"),
				PluginDir:    c.String("cni-plugin-dir"),
				ConfigDir:    c.String("cni-conf-dir"),
			})
			return err
		},

		Commands: []*cli.Command{
			recoverCommand(&iso),
			prepareCommand(&iso),
			isolateCommand(&iso),
			cleanupCommand(&iso),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func recoverCommand(iso **isolator.Isolator) *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "reconcile on-disk state against the containerizer's live and orphan container id sets",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "state", Usage: "a container id the containerizer reports as live, repeatable"},
			&cli.StringSliceFlag{Name: "orphan", Usage: "a container id the containerizer reports as an orphan, repeatable"},
		},
		Action: func(c *cli.Context) error {
			err := (*iso).Recover(context.Background(), c.StringSlice("state"), c.StringSlice("orphan"))
			if err != nil {
				return err
			}
			logrus.Info("recovery complete")
			return nil
		},
	}
}

func prepareCommand(iso **isolator.Isolator) *cli.Command {
	return &cli.Command{
		Name:      "prepare",
		Usage:     "validate a container's requested networks and reserve isolator state for it",
		ArgsUsage: "<container-id>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "network", Aliases: []string{"n"}, Usage: "a requested network name, repeatable, in request order"},
			&cli.StringFlag{Name: "container-type", Value: isolator.AgentNativeContainerType, Usage: "the container type to validate against"},
		},
		Action: func(c *cli.Context) error {
			containerID := c.Args().First()
			if containerID == "" {
				return fmt.Errorf("a container id is required")
			}

			spec := isolator.ContainerSpec{ContainerType: c.String("container-type")}
			for _, name := range c.StringSlice("network") {
				spec.Networks = append(spec.Networks, isolator.RequestedNetwork{Name: name})
			}

			info, err := (*iso).Prepare(containerID, spec)
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Println("no named networks requested; container will use the host network namespace")
				return nil
			}

			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func isolateCommand(iso **isolator.Isolator) *cli.Command {
	return &cli.Command{
		Name:      "isolate",
		Usage:     "pin the network namespace of a running process and attach its prepared networks",
		ArgsUsage: "<container-id> <pid>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("a container id and a pid are required")
			}
			containerID := c.Args().Get(0)
			pid, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", c.Args().Get(1), err)
			}

			if err := (*iso).Isolate(context.Background(), containerID, pid); err != nil {
				return err
			}
			logrus.WithField("containerId", containerID).Info("isolate complete")
			return nil
		},
	}
}

func cleanupCommand(iso **isolator.Isolator) *cli.Command {
	return &cli.Command{
		Name:      "cleanup",
		Usage:     "detach a container's networks and remove its isolator state",
		ArgsUsage: "<container-id>",
		Action: func(c *cli.Context) error {
			containerID := c.Args().First()
			if containerID == "" {
				return fmt.Errorf("a container id is required")
			}
			if err := (*iso).Cleanup(context.Background(), containerID); err != nil {
				return err
			}
			logrus.WithField("containerId", containerID).Info("cleanup complete")
			return nil
		},
	}
}
