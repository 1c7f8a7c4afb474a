package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/guildbot/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts the application to the service manager, which expects
// Start to return immediately.
type program struct {
	params app.RunParams
	inst   *app.Instance
}

func (p *program) Start(service.Service) error {
	inst, err := app.Build(p.params)
	if err != nil {
		return err
	}
	if err := inst.App.Start(); err != nil {
		_ = inst.Close(context.Background())
		return err
	}
	p.inst = inst
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.inst == nil {
		return nil
	}
	p.inst.App.Stop()
	return p.inst.Close(context.Background())
}

func newService(params app.RunParams) (service.Service, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, err
		}
		params.ConfigPath = abs
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	wd, _ := os.Getwd()
	return service.New(&program{params: params}, &service.Config{
		Name:             "guildbot",
		DisplayName:      "Guild Telegram bot",
		Description:      "Gates Telegram groups and channels on Guild roles.",
		Arguments:        args,
		WorkingDirectory: wd,
	})
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage guildbot as a system service",
	}
	for _, action := range service.ControlAction {
		sub := &cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(runParams(cmd))
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		}
		addRunFlags(sub)
		cmd.AddCommand(sub)
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed unit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(runParams(cmd))
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
	addRunFlags(run)
	cmd.AddCommand(run)
	return cmd
}
