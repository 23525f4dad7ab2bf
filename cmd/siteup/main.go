package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/siteup/siteup/cmd/flags"
	"github.com/siteup/siteup/config"
	"github.com/siteup/siteup/interfaces"
	"github.com/siteup/siteup/journal"
	"github.com/siteup/siteup/preflight"
	"github.com/siteup/siteup/provision"
	"github.com/siteup/siteup/sysexec"
)

func main() {
	app := &cli.App{
		Name:           "siteup",
		Usage:          "bootstrap this host into a TLS-terminated deployment of the application in the current directory",
		DefaultCommand: "run",
		Flags:          slices.Concat(flags.DeployFlags, flags.LogFlags),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "execute the full bootstrap sequence",
				Action: runAction,
			},
			{
				Name:   "render",
				Usage:  "print the artifacts a run would write, without touching the host",
				Action: renderAction,
			},
			{
				Name:   "status",
				Usage:  "report what is already in place on the host",
				Action: statusAction,
			},
			{
				Name:   "history",
				Usage:  "list past bootstrap runs recorded on this host",
				Flags:  []cli.Flag{flags.HistoryLimitFlag},
				Action: historyAction,
			},
			{
				Name:   "preflight",
				Usage:  "check DNS and port reachability for the configured domain",
				Flags:  []cli.Flag{flags.ResolverFlag},
				Action: preflightAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfigFile reads the deployment configuration and applies flag
// overrides, without requiring the result to be complete.
func loadConfigFile(cCtx *cli.Context) (config.Config, error) {
	var cfg config.Config
	var err error
	if path := cCtx.String(flags.ConfigFlag.Name); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDir(".")
	}
	if err != nil {
		return config.Config{}, err
	}

	if cCtx.IsSet(flags.DomainFlag.Name) {
		cfg.Domain = cCtx.String(flags.DomainFlag.Name)
	}
	if cCtx.IsSet(flags.PortFlag.Name) {
		cfg.Port = cCtx.Int(flags.PortFlag.Name)
	}
	if cCtx.IsSet(flags.EmailFlag.Name) {
		cfg.Email = cCtx.String(flags.EmailFlag.Name)
	}
	if cCtx.IsSet(flags.RedirectFlag.Name) {
		cfg.Redirect = cCtx.Bool(flags.RedirectFlag.Name)
	}

	cfg.Normalize()
	return cfg, nil
}

// loadConfig additionally validates, for the commands that need a full
// deployment description.
func loadConfig(cCtx *cli.Context) (config.Config, error) {
	cfg, err := loadConfigFile(cCtx)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newPipeline(cCtx *cli.Context) (*provision.Pipeline, config.Config, *slog.Logger, error) {
	logger := flags.SetupLogger(cCtx)
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	host, err := provision.CaptureHostContext()
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	pl, err := provision.NewPipeline(logger, sysexec.NewRunner(logger), cfg, host)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	return pl, cfg, logger, nil
}

func journalPath(cfg config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, journal.FileName)
}

// recordRun appends the run to the host's journal. Bookkeeping failures
// are logged and otherwise ignored; they never change the run's outcome
// or exit code.
func recordRun(logger *slog.Logger, cfg config.Config, started, finished time.Time, result *provision.Result) {
	store, err := journal.Open(logger, journalPath(cfg))
	if err != nil {
		logger.Warn("Run journal unavailable", "err", err)
		return
	}
	defer store.Close()

	run := journal.Run{
		ID:         uuid.NewString(),
		Domain:     cfg.Domain,
		Port:       cfg.Port,
		StartedAt:  started,
		FinishedAt: finished,
		OK:         result.Err() == nil,
		ExitCode:   interfaces.ExitCode(result.Err()),
	}
	if err := result.Err(); err != nil {
		run.Error = err.Error()
	}
	if failed := result.Failed(); failed != nil {
		run.FailedStage = string(failed.Stage)
	}
	for i, st := range result.Stages {
		stage := journal.Stage{Seq: i + 1, Stage: string(st.Stage), OK: st.OK()}
		if st.Err != nil {
			stage.Error = st.Err.Error()
		}
		run.Stages = append(run.Stages, stage)
	}

	if err := store.Record(run); err != nil {
		logger.Warn("Failed to record run in journal", "err", err)
	}
}

func runAction(cCtx *cli.Context) error {
	pl, cfg, logger, err := newPipeline(cCtx)
	if err != nil {
		return err
	}

	started := time.Now()
	result := pl.Run(cCtx.Context)
	recordRun(logger, cfg, started, time.Now(), result)

	if err := result.Err(); err != nil {
		return cli.Exit(err.Error(), interfaces.ExitCode(err))
	}

	fmt.Println()
	fmt.Println("Bootstrap finished. The service unit is written but not registered;")
	fmt.Println("to register and start it:")
	for _, step := range pl.NextSteps() {
		fmt.Printf("  %s\n", step)
	}
	return nil
}

func renderAction(cCtx *cli.Context) error {
	pl, cfg, _, err := newPipeline(cCtx)
	if err != nil {
		return err
	}

	unit, site, err := pl.RenderArtifacts()
	if err != nil {
		return err
	}

	fmt.Printf("# %s\n%s\n", filepath.Join(cfg.Paths.UnitDir, pl.UnitContext().FileName()), unit)
	fmt.Printf("# %s\n%s", filepath.Join(cfg.Paths.SitesAvailable, cfg.Domain), site)
	return nil
}

func statusAction(cCtx *cli.Context) error {
	pl, cfg, logger, err := newPipeline(cCtx)
	if err != nil {
		return err
	}

	st := pl.Inspect(cCtx.Context)

	if st.Runtime.RuntimePresent {
		fmt.Printf("runtime:     present (%s, %s)\n", st.Runtime.RuntimePath, st.Runtime.RuntimeVersion)
	} else {
		fmt.Println("runtime:     absent")
	}
	fmt.Printf("environment: %s (%s)\n", st.Env, st.EnvDir)
	fmt.Printf("unit:        %s (%s)\n", presence(st.UnitPresent, "written", "missing"), st.UnitPath)
	switch {
	case st.SiteEnabled:
		fmt.Printf("site:        enabled (%s)\n", st.SitePath)
	case st.SiteWritten:
		fmt.Printf("site:        written, not enabled (%s)\n", st.SitePath)
	default:
		fmt.Printf("site:        missing (%s)\n", st.SitePath)
	}
	fmt.Printf("upstream:    %s (%s)\n", presence(st.UpstreamReachable, "reachable", "unreachable"), cfg.UpstreamAddr())
	if st.Certificate != nil {
		days := int(st.Certificate.TimeToExpiry().Hours() / 24)
		fmt.Printf("certificate: issued by %s, expires %s (%dd)\n",
			st.Certificate.Issuer, st.Certificate.NotAfter.Format("2006-01-02"), days)
	} else {
		fmt.Println("certificate: none")
	}
	fmt.Printf("last run:    %s\n", lastRunSummary(logger, cfg))
	return nil
}

// lastRunSummary describes the most recent journaled run for the status
// report.
func lastRunSummary(logger *slog.Logger, cfg config.Config) string {
	path := journalPath(cfg)
	if _, err := os.Stat(path); err != nil {
		return "none recorded"
	}

	store, err := journal.Open(logger, path)
	if err != nil {
		logger.Debug("Run journal unreadable", "err", err)
		return "unreadable"
	}
	defer store.Close()

	last, err := store.LastRun()
	if err != nil {
		logger.Debug("Run journal unreadable", "err", err)
		return "unreadable"
	}
	if last == nil {
		return "none recorded"
	}

	when := last.StartedAt.Local().Format("2006-01-02 15:04")
	if last.OK {
		return fmt.Sprintf("%s, succeeded", when)
	}
	return fmt.Sprintf("%s, failed at %s (exit %d)", when, last.FailedStage, last.ExitCode)
}

func presence(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func historyAction(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	// History needs only the state directory; the domain may be absent.
	cfg, err := loadConfigFile(cCtx)
	if err != nil {
		return err
	}

	path := journalPath(cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("no runs recorded")
		return nil
	}

	store, err := journal.Open(logger, path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(cCtx.Int(flags.HistoryLimitFlag.Name))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, run := range runs {
		outcome := "ok"
		detail := fmt.Sprintf("%d stages", len(run.Stages))
		if !run.OK {
			outcome = "FAIL"
			detail = fmt.Sprintf("%s (exit %d)", run.FailedStage, run.ExitCode)
		}
		fmt.Printf("%s  %-4s  %s:%d  %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"), outcome, run.Domain, run.Port, detail)
	}
	return nil
}

func preflightAction(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	domain, err := interfaces.NewDomain(cfg.Domain)
	if err != nil {
		return err
	}

	checker := preflight.NewChecker(logger, cCtx.String(flags.ResolverFlag.Name))
	report := checker.Run(domain, preflight.DefaultPorts)
	for _, check := range report.Checks {
		mark := "ok"
		if !check.OK {
			mark = "FAIL"
		}
		fmt.Printf("%-12s %-5s %s\n", check.Name, mark, check.Detail)
	}

	if !report.Passed() {
		return cli.Exit("preflight checks failed", 1)
	}
	return nil
}
