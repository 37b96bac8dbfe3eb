package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"stakevault/config"
	"stakevault/observability/logging"
	vaultotel "stakevault/observability/otel"
	"stakevault/services/vault"
)

const (
	serviceName       = "stakectl"
	defaultConfigPath = "stakevault.toml"
)

type globalFlags struct {
	configPath string
	at         time.Time
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags, rest, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "init":
		return runInitCommand(flags, cmdArgs, stdout, stderr)
	case "mint":
		return runMintCommand(flags, cmdArgs, stdout, stderr)
	case "approve":
		return runApproveCommand(flags, cmdArgs, stdout, stderr)
	case "deposit":
		return runDepositCommand(flags, cmdArgs, stdout, stderr)
	case "deposit-to":
		return runDepositToCommand(flags, cmdArgs, stdout, stderr)
	case "push":
		return runPushCommand(flags, cmdArgs, stdout, stderr)
	case "request":
		return runRequestCommand(flags, cmdArgs, stdout, stderr)
	case "withdraw":
		return runWithdrawCommand(flags, cmdArgs, stdout, stderr, false)
	case "force-withdraw":
		return runWithdrawCommand(flags, cmdArgs, stdout, stderr, true)
	case "set-param":
		return runSetParamCommand(flags, cmdArgs, stdout, stderr)
	case "claim":
		return runClaimCommand(flags, cmdArgs, stdout, stderr)
	case "balance":
		return runBalanceCommand(flags, cmdArgs, stdout, stderr)
	case "position":
		return runPositionCommand(flags, cmdArgs, stdout, stderr)
	case "params":
		return runParamsCommand(flags, cmdArgs, stdout, stderr)
	case "events":
		return runEventsCommand(flags, cmdArgs, stdout, stderr)
	case "digest":
		return runDigestCommand(flags, cmdArgs, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n%s\n", cmd, usage())
		return 1
	}
}

// applyGlobalFlags strips --config and --at from anywhere in args.
func applyGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{configPath: defaultConfigPath}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, inline := strings.Cut(arg, "=")
		if name != "--config" && name != "--at" {
			out = append(out, arg)
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		switch name {
		case "--config":
			flags.configPath = value
		case "--at":
			at, err := parseAt(value)
			if err != nil {
				return flags, nil, err
			}
			flags.at = at
		}
	}
	return flags, out, nil
}

// parseAt accepts unix seconds or RFC3339.
func parseAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: expected unix seconds or RFC3339", raw)
	}
	return ts, nil
}

// withService loads the configuration, opens the vault and runs fn. Errors
// are reported on stderr and mapped to exit code 1.
func withService(flags globalFlags, stderr io.Writer, fn func(ctx context.Context, svc *vault.Service) error) int {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts := cfg.LoggingOptions()
	opts.Output = stderr
	logger, closeLog := logging.Setup(serviceName, cfg.Environment, opts)
	defer closeLog()

	ctx := context.Background()
	telemetry := cfg.TelemetryConfig(serviceName)
	shutdown, err := vaultotel.Init(ctx, telemetry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdown(ctx)
	if telemetry.Enabled() {
		logger.Debug("telemetry exporters enabled",
			slog.String("endpoint", telemetry.Endpoint),
			slog.Bool("traces", telemetry.Traces),
			slog.Bool("metrics", telemetry.Metrics),
			logging.MaskHeaders(telemetry.Headers))
	}

	svcOpts := vault.Options{Logger: logger}
	if !flags.at.IsZero() {
		at := flags.at
		svcOpts.Clock = func() time.Time { return at }
	}
	svc, err := vault.Open(cfg, svcOpts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer svc.Close()

	if err := fn(ctx, svc); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage() string {
	return `Usage: stakectl [--config path] [--at unix|RFC3339] <command> [args]

Commands:
  init                                    install the configured parameters
  mint <caller> <to> <amount>             mint tokens on the local ledger (administrators)
  approve <owner> <amount>                allow the pool to pull amount from owner
  deposit <from> <amount>                 open a new slot
  deposit-to <from> <slot> <amount>       top up an existing slot
  push <from> <amount> [slot]             transfer-and-call into the pool
  request <addr> <slot>                   open the timed withdrawal window
  withdraw <addr> <slot> [amount|all]     withdraw inside the window without fee
  force-withdraw <addr> <slot> [amount|all]
                                          withdraw immediately and pay the fee
  set-param <caller> <name> <value>       queue a parameter change
  claim <caller> <to>                     sweep pool surplus
  balance <addr>                          token balance
  position <addr> [slot]                  slot balances and withdrawal status
  params                                  effective and pending parameters
  events [--type t] [--limit n] [--since ts] [--export file.parquet]
                                          journaled events
  digest                                  state digest

Amounts are token units with up to 18 decimals.`
}
