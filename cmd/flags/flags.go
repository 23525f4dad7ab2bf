package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/siteup/siteup/common"
	"github.com/siteup/siteup/config"
	"github.com/siteup/siteup/preflight"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to the deployment config file (default: ./" + config.DefaultFileName + " when present)",
	EnvVars: []string{"SITEUP_CONFIG"},
}

var DomainFlag = &cli.StringFlag{
	Name:    "domain",
	Usage:   "fully qualified domain to publish the service under",
	EnvVars: []string{"SITEUP_DOMAIN"},
}

var PortFlag = &cli.IntFlag{
	Name:  "port",
	Usage: "local port the application listens on",
}

var EmailFlag = &cli.StringFlag{
	Name:    "email",
	Usage:   "contact email for the certificate authority account",
	EnvVars: []string{"SITEUP_EMAIL"},
}

var RedirectFlag = &cli.BoolFlag{
	Name:  "redirect",
	Value: true,
	Usage: "rewrite the site so plain-HTTP requests redirect to HTTPS",
}

var ResolverFlag = &cli.StringFlag{
	Name:  "resolver",
	Value: preflight.DefaultResolver,
	Usage: "DNS resolver address used by preflight checks",
}

var HistoryLimitFlag = &cli.IntFlag{
	Name:  "limit",
	Value: 20,
	Usage: "number of runs to show",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "siteup",
	Usage: "add 'service' tag to logs",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var DeployFlags = []cli.Flag{
	ConfigFlag,
	DomainFlag,
	PortFlag,
	EmailFlag,
	RedirectFlag,
}
