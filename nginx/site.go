// Package nginx generates, activates, and reloads reverse proxy sites.
//
// Activation is two-phase: the candidate descriptor is written and enabled
// first, then the proxy's own validator runs over the full configuration.
// Only a successful validation leads to a reload. When validation rejects
// the candidate, this run's descriptor and activation link are removed
// again so the active configuration is exactly what it was before the
// attempt.
//
// The proxy mutates descriptors too: the certificate provisioner appends
// TLS directives to the site file after issuance. A descriptor that already
// exists on disk is therefore never rewritten here. Everything after the
// write still runs on every pass, so a run interrupted before its reload
// converges when repeated.
package nginx

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/siteup/siteup/interfaces"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const siteTemplate = "site.tmpl"

// DefaultUpstreamHost is where the proxy forwards when the context does not
// say otherwise. The application binds all interfaces; the proxy talks to
// it over loopback.
const DefaultUpstreamHost = "127.0.0.1"

// SiteContext is the complete input to site rendering.
type SiteContext struct {
	// ServerName is the domain the site answers for.
	ServerName interfaces.Domain

	// UpstreamHost is the address requests are forwarded to. Empty means
	// DefaultUpstreamHost.
	UpstreamHost string

	// UpstreamPort is the port the application listens on. It must match
	// the port in the service unit's launch command; the pipeline derives
	// both from the same configuration value.
	UpstreamPort int
}

// FileName returns the descriptor file name, which is the domain itself.
func (c SiteContext) FileName() string {
	return c.ServerName.String()
}

// ApplyResult reports what activation actually did on this run.
type ApplyResult struct {
	// Path is the descriptor location under sites-available.
	Path string

	// Created is true when the descriptor was written fresh on this run.
	Created bool

	// Enabled is true when the activation link had to be created or fixed.
	Enabled bool

	// Reloaded is true when the proxy was reloaded.
	Reloaded bool
}

// Configurator manages proxy site descriptors and drives the proxy binary
// for validation and reload.
type Configurator struct {
	log            *slog.Logger
	runner         interfaces.CommandRunner
	sitesAvailable string
	sitesEnabled   string
	tmpl           *template.Template
}

// NewConfigurator creates a configurator over the given descriptor
// directories.
func NewConfigurator(log *slog.Logger, runner interfaces.CommandRunner, sitesAvailable, sitesEnabled string) (*Configurator, error) {
	content, err := templateFS.ReadFile("templates/" + siteTemplate)
	if err != nil {
		return nil, fmt.Errorf("reading site template: %w", err)
	}
	tmpl, err := template.New(siteTemplate).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing site template: %w", err)
	}

	return &Configurator{
		log:            log,
		runner:         runner,
		sitesAvailable: sitesAvailable,
		sitesEnabled:   sitesEnabled,
		tmpl:           tmpl,
	}, nil
}

// Render produces the site descriptor contents for the given context.
func (c *Configurator) Render(sctx SiteContext) ([]byte, error) {
	if sctx.UpstreamHost == "" {
		sctx.UpstreamHost = DefaultUpstreamHost
	}
	if err := sctx.ServerName.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, sctx); err != nil {
		return nil, fmt.Errorf("rendering site %s: %w", sctx.FileName(), err)
	}
	return buf.Bytes(), nil
}

// SitePath returns the descriptor location under sites-available.
func (c *Configurator) SitePath(sctx SiteContext) string {
	return filepath.Join(c.sitesAvailable, sctx.FileName())
}

// EnabledPath returns the activation link location under sites-enabled.
func (c *Configurator) EnabledPath(sctx SiteContext) string {
	return filepath.Join(c.sitesEnabled, sctx.FileName())
}

// Written reports whether the descriptor exists under sites-available.
func (c *Configurator) Written(sctx SiteContext) bool {
	_, err := os.Stat(c.SitePath(sctx))
	return err == nil
}

// Enabled reports whether the activation link resolves to the descriptor.
func (c *Configurator) Enabled(sctx SiteContext) bool {
	target, err := os.Readlink(c.EnabledPath(sctx))
	if err != nil {
		return false
	}
	return target == c.SitePath(sctx)
}

// Enable ensures the sites-enabled link points at the descriptor. A stale
// link or plain file at the enabled path is replaced. Reports whether
// anything had to change.
func (c *Configurator) Enable(sctx SiteContext) (bool, error) {
	changed, _, err := c.enable(sctx)
	return changed, err
}

// enable does the work of Enable and captures whatever entry the new link
// replaced, so a failed validation can put it back.
func (c *Configurator) enable(sctx SiteContext) (bool, *priorActivation, error) {
	if !c.Written(sctx) {
		return false, nil, interfaces.ErrSiteNotWritten
	}
	if c.Enabled(sctx) {
		return false, nil, nil
	}

	if err := os.MkdirAll(c.sitesEnabled, 0o755); err != nil {
		return false, nil, fmt.Errorf("creating sites-enabled directory: %w", err)
	}

	link := c.EnabledPath(sctx)
	var prior *priorActivation
	if fi, err := os.Lstat(link); err == nil {
		prior, err = captureActivation(link, fi)
		if err != nil {
			return false, nil, fmt.Errorf("inspecting stale activation entry: %w", err)
		}
		if err := os.Remove(link); err != nil {
			return false, nil, fmt.Errorf("replacing stale activation entry: %w", err)
		}
	}
	if err := os.Symlink(c.SitePath(sctx), link); err != nil {
		return false, nil, fmt.Errorf("enabling site: %w", err)
	}

	c.log.Info("Site enabled", "link", link)
	return true, prior, nil
}

// Validate runs the proxy's configuration check over the full loaded
// configuration, the freshly enabled candidate included.
func (c *Configurator) Validate(ctx context.Context) error {
	return c.runner.Run(ctx, "nginx", "-t")
}

// Reload tells the running proxy to pick up the validated configuration.
func (c *Configurator) Reload(ctx context.Context) error {
	return c.runner.Run(ctx, "systemctl", "reload", "nginx")
}

// Apply performs the two-phase activation for the site.
//
// The descriptor is written only when none exists yet; the certificate
// provisioner may have appended TLS directives to an existing one, and
// those bytes are never rewritten. The activation link is then ensured,
// and the full configuration is validated and reloaded. Validation and
// reload run even when descriptor and link were already in place, so a
// run that failed before its reload converges when rerun.
//
// If validation rejects the configuration, whatever this run added is
// removed again and any activation entry it replaced is put back. A
// ValidationError is returned without reloading, leaving the active
// configuration exactly as it was.
func (c *Configurator) Apply(ctx context.Context, sctx SiteContext) (*ApplyResult, error) {
	result := &ApplyResult{Path: c.SitePath(sctx)}

	content, err := c.Render(sctx)
	if err != nil {
		return nil, err
	}

	existing, exists, err := readIfExists(result.Path)
	if err != nil {
		return nil, fmt.Errorf("inspecting existing site descriptor: %w", err)
	}

	if !exists {
		if err := os.MkdirAll(c.sitesAvailable, 0o755); err != nil {
			return nil, fmt.Errorf("creating sites-available directory: %w", err)
		}
		if err := os.WriteFile(result.Path, content, 0o644); err != nil {
			return nil, fmt.Errorf("writing site descriptor: %w", err)
		}
		result.Created = true
		c.log.Info("Site descriptor written", "path", result.Path)
	} else {
		c.log.Info("Site descriptor already present, leaving as-is", "path", result.Path)
		if !bytes.Equal(existing, content) {
			c.log.Debug("Existing site descriptor differs from generated form", "path", result.Path)
		}
	}

	linkChanged, prior, err := c.enable(sctx)
	if err != nil {
		return nil, err
	}
	result.Enabled = linkChanged

	if err := c.Validate(ctx); err != nil {
		c.rollback(sctx, result.Created, linkChanged, prior)
		return nil, &interfaces.ValidationError{Artifact: result.Path, Err: err}
	}

	if err := c.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reloading proxy: %w", err)
	}
	result.Reloaded = true

	return result, nil
}

// rollback undoes this run's changes after a failed validation. Pre-existing
// descriptor bytes were never touched; removing what this run added and
// restoring the activation entry it replaced puts the previous state back
// exactly.
func (c *Configurator) rollback(sctx SiteContext, wroteCandidate, createdLink bool, prior *priorActivation) {
	if createdLink {
		link := c.EnabledPath(sctx)
		if err := os.Remove(link); err != nil {
			c.log.Error("Failed to remove activation link", "link", link, "err", err)
		} else if prior != nil {
			if err := prior.restore(link); err != nil {
				c.log.Error("Failed to restore replaced activation entry", "link", link, "err", err)
			}
		}
	}
	if wroteCandidate {
		if err := os.Remove(c.SitePath(sctx)); err != nil {
			c.log.Error("Failed to remove rejected site descriptor", "path", c.SitePath(sctx), "err", err)
		}
	}
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// priorActivation is whatever occupied the enabled path before this run's
// link replaced it: a symlink's target, or a plain file's bytes and mode.
type priorActivation struct {
	linkTarget string
	data       []byte
	mode       os.FileMode
}

// captureActivation records the entry at link so it can be restored later.
// Entries that are neither symlinks nor regular files are not captured.
func captureActivation(link string, fi os.FileInfo) (*priorActivation, error) {
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(link)
		if err != nil {
			return nil, err
		}
		return &priorActivation{linkTarget: target}, nil
	}
	if fi.Mode().IsRegular() {
		data, err := os.ReadFile(link)
		if err != nil {
			return nil, err
		}
		return &priorActivation{data: data, mode: fi.Mode().Perm()}, nil
	}
	return nil, nil
}

// restore recreates the captured entry at link.
func (p *priorActivation) restore(link string) error {
	if p.linkTarget != "" {
		return os.Symlink(p.linkTarget, link)
	}
	return os.WriteFile(link, p.data, p.mode)
}
