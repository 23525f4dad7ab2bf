// Package config loads the per-host deployment configuration. A deployment
// is described by a siteup.yaml in the application directory; every value
// has a default and CLI flags override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/siteup/siteup/interfaces"
)

// DefaultFileName is the configuration file looked up in the working
// directory when no explicit path is given.
const DefaultFileName = "siteup.yaml"

// Default artifact locations on a Debian-style host. Overridable through
// the paths section, which the tests use to point at temporary roots.
const (
	DefaultUnitDir        = "/etc/systemd/system"
	DefaultSitesAvailable = "/etc/nginx/sites-available"
	DefaultSitesEnabled   = "/etc/nginx/sites-enabled"
	DefaultLetsEncryptDir = "/etc/letsencrypt/live"
	DefaultStateDir       = "/var/lib/siteup"
)

var serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Config describes one deployment on one host.
type Config struct {
	// Domain is the fully qualified name the service is published under.
	// Required; everything else has a default.
	Domain string `yaml:"domain"`

	// Email is the account contact passed to the CA client. When empty the
	// client registers without an email address.
	Email string `yaml:"email"`

	// Port is the local port the application listens on. The service unit
	// binds it and the proxy site forwards to it; both render from this
	// single value.
	Port int `yaml:"port"`

	// AppModule is the application entrypoint handed to the runtime server,
	// in module:attribute form.
	AppModule string `yaml:"app_module"`

	Service ServiceConfig `yaml:"service"`
	Runtime RuntimeConfig `yaml:"runtime"`

	// VenvDir is the isolated environment directory, relative to the
	// application directory.
	VenvDir string `yaml:"venv_dir"`

	// Packages are the system packages the installer ensures.
	Packages []string `yaml:"packages"`

	// Libraries are the application libraries installed into the isolated
	// environment on every run. Entries may carry version pins; nothing is
	// pinned by default.
	Libraries []string `yaml:"libraries"`

	// Redirect requests the CA client to rewrite the site so plain-HTTP
	// requests redirect to HTTPS.
	Redirect bool `yaml:"redirect"`

	Paths PathsConfig `yaml:"paths"`
}

// ServiceConfig names the generated service unit.
type ServiceConfig struct {
	// Name is the unit name without the .service suffix. Defaults to the
	// first label of the domain.
	Name string `yaml:"name"`

	// Description is the unit description line.
	Description string `yaml:"description"`
}

// RuntimeConfig describes the language runtime the application needs.
type RuntimeConfig struct {
	// Interpreter is the runtime binary probed for on PATH.
	Interpreter string `yaml:"interpreter"`

	// FallbackPackages are installed once per run when the interpreter is
	// absent.
	FallbackPackages []string `yaml:"fallback_packages"`
}

// PathsConfig overrides the artifact locations.
type PathsConfig struct {
	UnitDir        string `yaml:"unit_dir"`
	SitesAvailable string `yaml:"sites_available"`
	SitesEnabled   string `yaml:"sites_enabled"`
	LetsEncryptDir string `yaml:"letsencrypt_dir"`

	// StateDir holds siteup's own records, currently the run journal.
	StateDir string `yaml:"state_dir"`
}

// Default returns the configuration for a stock deployment: a Python web
// application served by uvicorn on port 8000 behind nginx.
func Default() Config {
	return Config{
		Port:      8000,
		AppModule: "app.main:app",
		VenvDir:   "venv",
		Runtime: RuntimeConfig{
			Interpreter:      "python3",
			FallbackPackages: []string{"python3.11", "python3.11-venv"},
		},
		Packages:  []string{"python3-venv", "nginx", "certbot", "python3-certbot-nginx"},
		Libraries: []string{"fastapi", "uvicorn[standard]", "python-multipart", "python-jose", "psutil"},
		Redirect:  true,
		Paths: PathsConfig{
			UnitDir:        DefaultUnitDir,
			SitesAvailable: DefaultSitesAvailable,
			SitesEnabled:   DefaultSitesEnabled,
			LetsEncryptDir: DefaultLetsEncryptDir,
			StateDir:       DefaultStateDir,
		},
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir looks for siteup.yaml in dir. A missing file is not an error;
// the defaults are returned and flags are expected to fill in the domain.
func LoadDir(dir string) (Config, error) {
	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("checking for %s: %w", DefaultFileName, err)
	}
	return Load(path)
}

// Normalize fills fields derived from others: the service name defaults to
// the first label of the domain, the description to a standard line.
func (c *Config) Normalize() {
	if c.Service.Name == "" && c.Domain != "" {
		c.Service.Name, _, _ = strings.Cut(c.Domain, ".")
	}
	if c.Service.Description == "" {
		c.Service.Description = fmt.Sprintf("Web service for %s", c.Domain)
	}
}

// Validate checks the configuration is complete and well formed.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return errors.New("domain is required (set it in siteup.yaml or pass --domain)")
	}
	if _, err := interfaces.NewDomain(c.Domain); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !serviceNameRegex.MatchString(c.Service.Name) {
		return fmt.Errorf("invalid service name %q", c.Service.Name)
	}
	if c.AppModule == "" {
		return errors.New("app_module is required")
	}
	if c.VenvDir == "" {
		return errors.New("venv_dir is required")
	}
	if c.Runtime.Interpreter == "" {
		return errors.New("runtime.interpreter is required")
	}
	return nil
}

// UpstreamAddr is the local address the proxy forwards to.
func (c Config) UpstreamAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}
