// Package preflight answers "would a run have a chance?" questions without
// mutating anything: does the domain resolve, and are the service ports
// reachable. The pipeline itself never performs these checks; operators
// invoke them explicitly before a run when they want the diagnosis.
package preflight

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/siteup/siteup/interfaces"
)

// DefaultResolver is the local stub resolver queried unless the operator
// points the checker elsewhere.
const DefaultResolver = "127.0.0.53:53"

// DefaultPorts are the ports probed for reachability: the challenge port
// and the TLS port.
var DefaultPorts = []int{80, 443}

const dialTimeout = 3 * time.Second

// Check is one diagnostic result.
type Check struct {
	// Name identifies the check, e.g. "dns A/AAAA" or "tcp 80".
	Name string

	// OK reports whether the check passed.
	OK bool

	// Detail is a human-readable result or failure reason.
	Detail string
}

// Report collects the diagnostics for one domain.
type Report struct {
	Domain interfaces.Domain
	Checks []Check
}

// Passed reports whether every check succeeded.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Checker runs host-external diagnostics against a configurable resolver.
type Checker struct {
	log      *slog.Logger
	resolver string
}

// NewChecker creates a checker. An empty resolver address selects the
// local stub resolver.
func NewChecker(log *slog.Logger, resolver string) *Checker {
	if resolver == "" {
		resolver = DefaultResolver
	}
	return &Checker{log: log, resolver: resolver}
}

// Run resolves the domain's address records and dials each port on the
// first resolved address. Port checks are skipped when nothing resolves.
func (c *Checker) Run(domain interfaces.Domain, ports []int) *Report {
	report := &Report{Domain: domain}

	addrs, err := c.resolveAddrs(domain)
	switch {
	case err != nil:
		report.Checks = append(report.Checks, Check{Name: "dns A/AAAA", Detail: fmt.Sprintf("query failed: %v", err)})
	case len(addrs) == 0:
		report.Checks = append(report.Checks, Check{Name: "dns A/AAAA", Detail: "no address records"})
	default:
		report.Checks = append(report.Checks, Check{Name: "dns A/AAAA", OK: true, Detail: strings.Join(addrs, ", ")})
	}

	for _, port := range ports {
		name := fmt.Sprintf("tcp %d", port)
		if len(addrs) == 0 {
			report.Checks = append(report.Checks, Check{Name: name, Detail: "skipped: domain does not resolve"})
			continue
		}

		addr := net.JoinHostPort(addrs[0], fmt.Sprintf("%d", port))
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			report.Checks = append(report.Checks, Check{Name: name, Detail: err.Error()})
			continue
		}
		conn.Close()
		report.Checks = append(report.Checks, Check{Name: name, OK: true, Detail: addr + " reachable"})
	}

	for _, check := range report.Checks {
		c.log.Info("Preflight check", "name", check.Name, "ok", check.OK, "detail", check.Detail)
	}
	return report
}

// resolveAddrs queries the resolver for A and AAAA records.
func (c *Checker) resolveAddrs(domain interfaces.Domain) ([]string, error) {
	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.Id = dns.Id()
		m.RecursionDesired = true
		m.Question = []dns.Question{{Name: dns.Fqdn(domain.String()), Qtype: qtype, Qclass: dns.ClassINET}}

		client := &dns.Client{Timeout: 5 * time.Second}
		in, _, err := client.Exchange(m, c.resolver)
		if err != nil {
			return nil, err
		}

		for _, answer := range in.Answer {
			switch rr := answer.(type) {
			case *dns.A:
				addrs = append(addrs, rr.A.String())
			case *dns.AAAA:
				addrs = append(addrs, rr.AAAA.String())
			}
		}
	}
	return addrs, nil
}
