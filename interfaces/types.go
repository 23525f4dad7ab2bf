package interfaces

import (
	"errors"
	"fmt"
	"regexp"
)

// Domain represents a fully qualified domain name the service is published
// under.
type Domain string

var domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// NewDomain creates a new domain name with validation.
func NewDomain(domain string) (Domain, error) {
	if len(domain) == 0 {
		return Domain(""), errors.New("empty domain name")
	}
	if len(domain) > 253 {
		return Domain(""), errors.New("domain name exceeds 253 characters")
	}
	if !domainRegex.MatchString(domain) {
		return Domain(""), fmt.Errorf("invalid domain name format: %q", domain)
	}

	return Domain(domain), nil
}

// String returns the domain name as a string.
func (d Domain) String() string {
	return string(d)
}

// Validate checks if the domain name has a valid format.
func (d Domain) Validate() error {
	_, err := NewDomain(string(d))
	return err
}

// EnvStatus classifies the on-disk state of the isolated runtime environment.
type EnvStatus int

const (
	// EnvAbsent means the environment directory does not exist.
	EnvAbsent EnvStatus = iota

	// EnvPresent means the environment exists and its interpreter is usable.
	EnvPresent

	// EnvCorrupt means the directory exists but the interpreter inside it is
	// missing or not executable. A corrupt environment is recreated, not
	// trusted.
	EnvCorrupt
)

// String returns a human-readable status name.
func (s EnvStatus) String() string {
	switch s {
	case EnvAbsent:
		return "absent"
	case EnvPresent:
		return "present"
	case EnvCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// HostEnvironment is the result of probing the host for the language runtime.
// It is computed fresh on every run and never persisted.
type HostEnvironment struct {
	// RuntimePresent reports whether the interpreter was found on PATH.
	RuntimePresent bool

	// RuntimePath is the resolved interpreter path when present.
	RuntimePath string

	// RuntimeVersion is the version string the interpreter reported.
	RuntimeVersion string
}

// HostContext carries the ambient process context the pipeline captures once
// at startup. Stages receive it explicitly instead of reading the working
// directory or user from the process at generation time.
type HostContext struct {
	// WorkingDirectory is the directory the pipeline was started from. The
	// generated service unit runs the application from this directory.
	WorkingDirectory string

	// User is the account the generated service unit runs as.
	User string
}
