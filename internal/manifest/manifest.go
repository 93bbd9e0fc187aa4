// Package manifest defines the structure and parsing of rivet
// manifests: a target host plus an ordered list of command steps.
package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// Manifest describes one run: where to connect and what to execute.
type Manifest struct {
	// Path is the file path the manifest was loaded from.
	Path string `yaml:"-"`

	// Name is an optional description of the manifest.
	Name string `yaml:"name"`

	// Target is the host to run against, "host" or "host:port".
	Target string `yaml:"target"`

	// User is the username to authenticate as.
	User string `yaml:"user"`

	// Key optionally points at a private key file to use instead of
	// the default ~/.ssh/id_rsa.
	Key string `yaml:"key"`

	// Vars are interpolated into step commands with {{ var }} syntax.
	Vars map[string]string `yaml:"vars"`

	// Steps is the list of commands to run, in order.
	Steps []*Step `yaml:"steps"`
}

// Step is a single command in a manifest.
type Step struct {
	// Name is a description of the step used in output.
	Name string `yaml:"name"`

	// Cmd is the command text to run.
	Cmd string `yaml:"cmd"`

	// Cwd changes the remote working directory for the command.
	Cwd string `yaml:"cwd"`

	// Bash runs the command through bash, enabling pipes, redirection
	// and variable expansion.
	Bash bool `yaml:"bash"`

	// AllowError keeps a non-zero exit status from failing the run.
	AllowError bool `yaml:"allow_error"`

	// NoStdout stops capturing stdout, for commands with huge output.
	NoStdout bool `yaml:"no_stdout"`

	// NoStderr stops capturing stderr.
	NoStderr bool `yaml:"no_stderr"`

	// Background runs the command on its own connection while the
	// following steps proceed; it is collected after the last
	// sequential step.
	Background bool `yaml:"background"`

	// Timeout bounds how long the runner waits for this step, e.g.
	// "30s". The remote command is not killed on expiry; the runner
	// stops waiting and reports the step as timed out.
	Timeout string `yaml:"timeout"`
}

// Addr returns the target endpoint with the default SSH port applied.
func (m *Manifest) Addr() string {
	if strings.Contains(m.Target, ":") {
		return m.Target
	}
	return m.Target + ":22"
}

// Command builds the remote command this step describes.
func (s *Step) Command() remote.Command {
	cmd := remote.Cmd(s.Cmd)
	if s.Cwd != "" {
		cmd = cmd.Cwd(s.Cwd)
	}
	if s.Bash {
		cmd = cmd.UseBash()
	}
	if s.AllowError {
		cmd = cmd.AllowError()
	}
	if s.NoStdout {
		cmd = cmd.NoStdout()
	}
	if s.NoStderr {
		cmd = cmd.NoStderr()
	}
	return cmd
}

// GetTimeout returns the parsed step timeout, zero when unset. Validate
// guarantees the value parses for manifests that went through Parse.
func (s *Step) GetTimeout() time.Duration {
	if s.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// String returns a human-readable description of the step.
func (s *Step) String() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.Cmd) > 40 {
		return s.Cmd[:37] + "..."
	}
	return s.Cmd
}

// Validate checks the manifest for common errors.
func (m *Manifest) Validate() error {
	if m.Target == "" {
		return fmt.Errorf("manifest is missing required 'target' field")
	}
	if m.User == "" {
		return fmt.Errorf("manifest is missing required 'user' field")
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("manifest has no steps")
	}

	for i, step := range m.Steps {
		if err := step.Validate(); err != nil {
			name := step.Name
			if name == "" {
				name = fmt.Sprintf("step %d", i+1)
			}
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

// Validate checks the step for common errors.
func (s *Step) Validate() error {
	if strings.TrimSpace(s.Cmd) == "" {
		return fmt.Errorf("step is missing required 'cmd' field")
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
		}
	}
	return nil
}
