package cmd

import "log/slog"

// ServiceCommand groups the systemd service lifecycle subcommands.
type ServiceCommand struct {
	Install   ServiceInstall   `cmd:"" help:"Install and enable the padlinkd systemd service."`
	Uninstall ServiceUninstall `cmd:"" help:"Stop, disable, and remove the padlinkd systemd service."`
}

// ServiceInstall writes the systemd unit file and enables it.
type ServiceInstall struct{}

func (c *ServiceInstall) Run(logger *slog.Logger) error {
	return install(logger)
}

// ServiceUninstall stops and removes the systemd unit file.
type ServiceUninstall struct{}

func (c *ServiceUninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}

// currentExecutable resolves the absolute path to the running binary, used
// as the ExecStart target when generating the systemd unit.
func currentExecutable() (string, error) {
	return resolveExecutable()
}
