package remote

import (
	"fmt"
	"strings"
)

// Command describes a single remote command and how it should be run.
// The zero value is an empty command and is rejected by Execute and Spawn.
//
// Command is a value type: every builder method returns a modified copy,
// so a base command can be reused and specialized freely:
//
//	base := remote.Cmd("ls -la")
//	tmp := base.Cwd("/tmp")
//	etc := base.Cwd("/etc")
//
// Builder methods never touch the network. Validation happens when the
// command is executed or spawned, not when it is built.
type Command struct {
	text       string
	cwd        string
	useBash    bool
	allowError bool
	dryRun     bool
	noStdout   bool
	noStderr   bool
}

// Cmd returns a Command that runs the given text on the remote host.
func Cmd(text string) Command {
	return Command{text: text}
}

// Cmdf is Cmd with fmt.Sprintf formatting applied to the command text.
func Cmdf(format string, args ...any) Command {
	return Command{text: fmt.Sprintf(format, args...)}
}

// Cwd changes the directory the command runs in. The directory is
// switched on the remote side before the command starts, so relative
// paths in the command text resolve against dir.
func (c Command) Cwd(dir string) Command {
	c.cwd = dir
	return c
}

// UseBash wraps the command in `bash -c '...'` with shell quoting, so
// pipes, redirection, globs and environment expansion work. Without it
// the text is sent verbatim on the exec channel and the remote side
// treats it as a plain command line with no shell features.
func (c Command) UseBash() Command {
	c.useBash = true
	return c
}

// AllowError keeps a non-zero exit status from being turned into a
// CommandError. The caller inspects Output.ExitStatus instead.
func (c Command) AllowError() Command {
	c.allowError = true
	return c
}

// NoStdout stops the remote stdout from being captured. The stream is
// still drained, so the command cannot block on a full pipe, but
// Output.Stdout stays empty. Useful for commands with very large output.
func (c Command) NoStdout() Command {
	c.noStdout = true
	return c
}

// NoStderr stops the remote stderr from being captured, like NoStdout.
func (c Command) NoStderr() Command {
	c.noStderr = true
	return c
}

// DryRun marks the command to be printed but not executed.
func (c Command) DryRun(on bool) Command {
	c.dryRun = on
	return c
}

// String returns the raw command text as given to Cmd, without any
// bash wrapping or cwd prefix.
func (c Command) String() string {
	return c.text
}

// render builds the exact text sent on the exec channel: the bash
// wrapping is applied first, then the cwd prefix, so the directory
// change stays outside the quoted bash payload.
func (c Command) render() string {
	line := c.text
	if c.useBash {
		line = "bash -c " + EscapeBash(line)
	}
	if c.cwd != "" {
		line = fmt.Sprintf("cd %s ; %s", c.cwd, line)
	}
	return line
}

// empty reports whether the command has no text to run.
func (c Command) empty() bool {
	return strings.TrimSpace(c.text) == ""
}
