// Package systemd renders and writes service unit files. It never talks to
// the service manager itself: registration and start remain explicit
// operator actions, and the generator prints the commands for them.
package systemd

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const unitTemplate = "service.tmpl"

// UnitContext is the complete input to unit rendering. Rendering is a pure
// function of this value: the same context always produces byte-identical
// output. The working directory and user come from the host context the
// pipeline captured at startup, never from the process at render time.
type UnitContext struct {
	// Name is the unit name without the .service suffix.
	Name string

	// Description is the [Unit] description line.
	Description string

	// User is the account the service runs as.
	User string

	// WorkingDirectory is the directory the service starts in.
	WorkingDirectory string

	// ExecStart is the full launch command line.
	ExecStart string

	// Restart is the restart policy. Empty means always.
	Restart string
}

// FileName returns the unit file name.
func (c UnitContext) FileName() string {
	return c.Name + ".service"
}

// Generator renders unit files from the embedded template and writes them
// under the unit directory.
type Generator struct {
	log     *slog.Logger
	unitDir string
	tmpl    *template.Template
}

// NewGenerator creates a generator writing units under unitDir.
func NewGenerator(log *slog.Logger, unitDir string) (*Generator, error) {
	content, err := templateFS.ReadFile("templates/" + unitTemplate)
	if err != nil {
		return nil, fmt.Errorf("reading unit template: %w", err)
	}
	tmpl, err := template.New(unitTemplate).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing unit template: %w", err)
	}

	return &Generator{log: log, unitDir: unitDir, tmpl: tmpl}, nil
}

// Render produces the unit file contents for the given context.
func (g *Generator) Render(uctx UnitContext) ([]byte, error) {
	if uctx.Restart == "" {
		uctx.Restart = "always"
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, uctx); err != nil {
		return nil, fmt.Errorf("rendering unit %s: %w", uctx.FileName(), err)
	}
	return buf.Bytes(), nil
}

// WriteUnit renders the unit and persists it, overwriting any previous
// version. The unit is regenerated on every run; it is not registered or
// started here. Returns the path written.
func (g *Generator) WriteUnit(uctx UnitContext) (string, error) {
	content, err := g.Render(uctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.unitDir, 0o755); err != nil {
		return "", fmt.Errorf("creating unit directory: %w", err)
	}

	path := filepath.Join(g.unitDir, uctx.FileName())
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing unit file: %w", err)
	}

	g.log.Info("Service unit written", "path", path, "exec", uctx.ExecStart)
	return path, nil
}

// UnitPath returns where WriteUnit would place the unit for this context.
func (g *Generator) UnitPath(uctx UnitContext) string {
	return filepath.Join(g.unitDir, uctx.FileName())
}

// NextSteps lists the operator commands that register and start the unit.
func NextSteps(uctx UnitContext) []string {
	return []string{
		"sudo systemctl daemon-reload",
		fmt.Sprintf("sudo systemctl enable --now %s", uctx.FileName()),
	}
}
