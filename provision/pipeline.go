// Package provision orchestrates the bootstrap sequence that turns a fresh
// host into a running, internet-reachable, TLS-terminated web service.
//
// The sequence is strict and fail-fast: language runtime, system packages,
// isolated environment, application libraries, service unit, reverse proxy
// site, TLS certificate. Each stage records an explicit result; the first
// failure stops the run and nothing performed earlier is rolled back. The
// run's exit code is the failing external command's own exit code.
//
// Two couplings hold by construction: the service unit's working directory
// is the host context captured once at startup, and the port in the unit's
// launch command is the same configuration value the proxy site forwards
// to.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/siteup/siteup/certbot"
	"github.com/siteup/siteup/config"
	"github.com/siteup/siteup/installer"
	"github.com/siteup/siteup/interfaces"
	"github.com/siteup/siteup/nginx"
	"github.com/siteup/siteup/systemd"
)

// Stage identifies one pipeline phase.
type Stage string

const (
	StageRuntime   Stage = "runtime"
	StagePackages  Stage = "system-packages"
	StageEnv       Stage = "isolated-env"
	StageLibraries Stage = "libraries"
	StageUnit      Stage = "service-unit"
	StageProxy     Stage = "proxy-site"
	StageCert      Stage = "certificate"
)

// StageResult is the explicit outcome of one executed stage.
type StageResult struct {
	Stage Stage
	Err   error
}

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool {
	return r.Err == nil
}

// Result collects the results of the stages that actually executed, in
// order. After a failure the failing stage is the last entry; nothing
// beyond it ran.
type Result struct {
	Stages []StageResult
}

// Err returns the run's failure, annotated with the failing stage, or nil.
func (r *Result) Err() error {
	for _, s := range r.Stages {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Stage, s.Err)
		}
	}
	return nil
}

// Failed returns the failing stage result, or nil for a clean run.
func (r *Result) Failed() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Err != nil {
			return &r.Stages[i]
		}
	}
	return nil
}

// CaptureHostContext reifies the ambient process context. It is read once
// here; every later consumer receives the captured value instead of asking
// the process again.
func CaptureHostContext() (interfaces.HostContext, error) {
	wd, err := os.Getwd()
	if err != nil {
		return interfaces.HostContext{}, fmt.Errorf("determining working directory: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return interfaces.HostContext{}, fmt.Errorf("determining current user: %w", err)
	}
	return interfaces.HostContext{WorkingDirectory: wd, User: u.Username}, nil
}

// Pipeline wires the bootstrap stages over one configuration and one
// captured host context.
type Pipeline struct {
	log    *slog.Logger
	cfg    config.Config
	host   interfaces.HostContext
	runner interfaces.CommandRunner

	installer *installer.Installer
	units     *systemd.Generator
	proxy     *nginx.Configurator
	certs     *certbot.Provisioner
}

// NewPipeline builds the pipeline and its stage components from the
// validated configuration.
func NewPipeline(log *slog.Logger, runner interfaces.CommandRunner, cfg config.Config, host interfaces.HostContext) (*Pipeline, error) {
	units, err := systemd.NewGenerator(log, cfg.Paths.UnitDir)
	if err != nil {
		return nil, err
	}
	proxy, err := nginx.NewConfigurator(log, runner, cfg.Paths.SitesAvailable, cfg.Paths.SitesEnabled)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		log:       log,
		cfg:       cfg,
		host:      host,
		runner:    runner,
		installer: installer.New(log, runner),
		units:     units,
		proxy:     proxy,
		certs:     certbot.NewProvisioner(log, runner, cfg.Paths.LetsEncryptDir),
	}, nil
}

// EnvDir is the isolated environment location under the application
// directory.
func (p *Pipeline) EnvDir() string {
	return filepath.Join(p.host.WorkingDirectory, p.cfg.VenvDir)
}

// ExecStart builds the service launch command: the environment's server
// binary, the application module, and the bind address. The port is the
// same configuration value the proxy site forwards to.
func (p *Pipeline) ExecStart() string {
	server := filepath.Join(p.EnvDir(), "bin", "uvicorn")
	return fmt.Sprintf("%s %s --host 0.0.0.0 --port %d", server, p.cfg.AppModule, p.cfg.Port)
}

// UnitContext derives the service unit inputs from the configuration and
// the captured host context.
func (p *Pipeline) UnitContext() systemd.UnitContext {
	return systemd.UnitContext{
		Name:             p.cfg.Service.Name,
		Description:      p.cfg.Service.Description,
		User:             p.host.User,
		WorkingDirectory: p.host.WorkingDirectory,
		ExecStart:        p.ExecStart(),
	}
}

// SiteContext derives the proxy site inputs from the configuration.
func (p *Pipeline) SiteContext() nginx.SiteContext {
	return nginx.SiteContext{
		ServerName:   interfaces.Domain(p.cfg.Domain),
		UpstreamPort: p.cfg.Port,
	}
}

// NextSteps lists the operator commands that remain after a run: service
// registration stays an explicit operator action.
func (p *Pipeline) NextSteps() []string {
	return systemd.NextSteps(p.UnitContext())
}

// RenderArtifacts produces the unit and site descriptors a run would
// write, without touching anything.
func (p *Pipeline) RenderArtifacts() (unit, site []byte, err error) {
	unit, err = p.units.Render(p.UnitContext())
	if err != nil {
		return nil, nil, err
	}
	site, err = p.proxy.Render(p.SiteContext())
	if err != nil {
		return nil, nil, err
	}
	return unit, site, nil
}

// Run executes the stages strictly in order, stopping at the first
// failure. One status line announces each stage; external tool output
// passes through to the terminal unchanged.
func (p *Pipeline) Run(ctx context.Context) *Result {
	result := &Result{}

	step := func(stage Stage, banner string, fn func() error) bool {
		p.log.Info(banner, "stage", string(stage))
		err := fn()
		result.Stages = append(result.Stages, StageResult{Stage: stage, Err: err})
		if err != nil {
			p.log.Error("Stage failed, aborting run", "stage", string(stage), "err", err)
			return false
		}
		return true
	}

	if !step(StageRuntime, "Checking language runtime", func() error {
		_, err := p.installer.EnsureRuntime(ctx, p.cfg.Runtime)
		return err
	}) {
		return result
	}

	if !step(StagePackages, "Installing system packages", func() error {
		return p.installer.EnsureSystemPackages(ctx, p.cfg.Packages)
	}) {
		return result
	}

	if !step(StageEnv, "Preparing isolated environment", func() error {
		_, err := p.installer.EnsureEnv(ctx, p.cfg.Runtime.Interpreter, p.EnvDir())
		return err
	}) {
		return result
	}

	if !step(StageLibraries, "Installing application libraries", func() error {
		return p.installer.EnsureLibraries(ctx, p.EnvDir(), p.cfg.Libraries)
	}) {
		return result
	}

	if !step(StageUnit, "Generating service unit", func() error {
		_, err := p.units.WriteUnit(p.UnitContext())
		return err
	}) {
		return result
	}

	if !step(StageProxy, "Configuring reverse proxy", func() error {
		_, err := p.proxy.Apply(ctx, p.SiteContext())
		return err
	}) {
		return result
	}

	// The certificate stage requires the site enabled and the proxy
	// serving it; the CA's challenge arrives through that site.
	if !step(StageCert, "Provisioning TLS certificate", func() error {
		return p.certs.Obtain(ctx, certbot.Request{
			Domain:   interfaces.Domain(p.cfg.Domain),
			Email:    p.cfg.Email,
			Redirect: p.cfg.Redirect,
		})
	}) {
		return result
	}

	p.log.Info("Bootstrap complete", "domain", p.cfg.Domain)
	return result
}
