// Logctl is the command-line client for monitoring and controlling a running
// gnsslogd instance. It connects over HTTP and WebSocket to query status and
// stream live events from the daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/cobbett/gnsslogger/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Logger daemon URL (e.g. http://192.168.8.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter state,log)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --set are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "files":
		opts := ctl.FilesOptions{JSON: *jsonOut}
		fileFlags := pflag.NewFlagSet("files", pflag.ContinueOnError)
		fileFlags.StringVar(&opts.Delete, "delete", "", "Delete a log file by name")
		_ = fileFlags.Parse(subArgs)
		err = ctl.Files(*host, opts)

	case "settings":
		opts := ctl.SettingsOptions{JSON: *jsonOut}
		setFlags := pflag.NewFlagSet("settings", pflag.ContinueOnError)
		setFlags.StringSliceVar(&opts.Set, "set", nil, "Assign a setting (section.key=value, repeatable)")
		setFlags.BoolVar(&opts.Save, "save", false, "Persist the daemon's settings to its config file")
		_ = setFlags.Parse(subArgs)
		err = ctl.Settings(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case "power-down":
		err = ctl.PowerDown(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  logctl — GNSS logger control CLI

  USAGE
    logctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show power state, logging health, and uptime
    health          Check daemon and component health
    version         Show CLI and daemon version information
    files           List log files in the data root
    settings        Show the daemon's settings record

  COMMANDS (control)
    settings --set  Update settings in memory (--save to persist)
    power-down      Request a sleep cycle at the next checkpoint

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    files:
        --delete NAME       Delete a log file by name

    settings:
        --set KEY=VALUE     Assign a setting, e.g. duty.active_seconds=600
        --save              Persist settings to the daemon's config file

  EXAMPLES
    logctl status
    logctl --json status
    logctl --host http://192.168.8.1:8080 watch
    logctl files
    logctl files --delete gnsslog_00004.ubx
    logctl settings
    logctl settings --set duty.active_seconds=600 --set duty.sleep_seconds=1200
    logctl settings --save
    logctl power-down
    logctl watch --filter state,power_loss,file

`)
}
