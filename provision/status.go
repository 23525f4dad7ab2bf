package provision

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/siteup/siteup/certbot"
	"github.com/siteup/siteup/installer"
	"github.com/siteup/siteup/interfaces"
)

const upstreamDialTimeout = 2 * time.Second

// Status is a read-only snapshot of the deployment's artifacts and
// processes. Gathering it runs no external commands beyond the runtime
// version probe and mutates nothing.
type Status struct {
	Runtime interfaces.HostEnvironment
	Env     interfaces.EnvStatus
	EnvDir  string

	UnitPath    string
	UnitPresent bool

	SitePath    string
	SiteWritten bool
	SiteEnabled bool

	// UpstreamReachable is true when something accepts connections on the
	// application port. That something being the application is up to the
	// operator; the unit is registered and started by hand.
	UpstreamReachable bool

	// Certificate is the installed certificate, nil when none is readable.
	Certificate *certbot.Certificate
}

// Inspect gathers the deployment status for the configured domain.
func (p *Pipeline) Inspect(ctx context.Context) *Status {
	st := &Status{
		Runtime: installer.DetectRuntime(ctx, p.runner, p.cfg.Runtime.Interpreter),
		EnvDir:  p.EnvDir(),
	}
	st.Env = installer.ProbeEnv(st.EnvDir)

	uctx := p.UnitContext()
	st.UnitPath = p.units.UnitPath(uctx)
	if _, err := os.Stat(st.UnitPath); err == nil {
		st.UnitPresent = true
	}

	sctx := p.SiteContext()
	st.SitePath = p.proxy.SitePath(sctx)
	st.SiteWritten = p.proxy.Written(sctx)
	st.SiteEnabled = p.proxy.Enabled(sctx)

	if conn, err := net.DialTimeout("tcp", p.cfg.UpstreamAddr(), upstreamDialTimeout); err == nil {
		conn.Close()
		st.UpstreamReachable = true
	}

	if cert, err := p.certs.InspectCertificate(interfaces.Domain(p.cfg.Domain)); err == nil {
		st.Certificate = cert
	}

	return st
}
