// Package main is the entrypoint for the rivet CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugenetaranov/rivet/internal/manifest"
	"github.com/eugenetaranov/rivet/internal/output"
	"github.com/eugenetaranov/rivet/internal/runner"
	"github.com/eugenetaranov/rivet/pkg/facts"
	"github.com/eugenetaranov/rivet/pkg/remote"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	debug         bool
	dryRun        bool
	noColor       bool
	cfgUser       string
	cfgKeyPath    string
	cfgKnownHosts string
	strictHostKey bool
	connTimeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rivet",
	Short: "Rivet - Remote command execution over SSH",
	Long: `Rivet runs shell commands on remote hosts over SSH, one-off or from
simple YAML manifests. Background steps run concurrently on their own
connections, so a long command never blocks the rest of a run.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	home, _ := os.UserHomeDir()

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output with captured command streams")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Echo commands without executing them")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVarP(&cfgUser, "user", "u", "", "SSH username")
	rootCmd.PersistentFlags().StringVar(&cfgKeyPath, "key", "", "Path to SSH private key (default ~/.ssh/id_rsa)")
	rootCmd.PersistentFlags().StringVar(&cfgKnownHosts, "known-hosts", filepath.Join(home, ".ssh", "known_hosts"), "Path to known_hosts file")
	rootCmd.PersistentFlags().BoolVar(&strictHostKey, "strict-host-key", false, "Require host key verification against known_hosts")
	rootCmd.PersistentFlags().DurationVar(&connTimeout, "conn-timeout", remote.DefaultDialTimeout, "Connection timeout")

	// Bind env with Viper: RIVET_USER, RIVET_KEY, ...
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("key", rootCmd.PersistentFlags().Lookup("key"))
	_ = viper.BindPFlag("known-hosts", rootCmd.PersistentFlags().Lookup("known-hosts"))
	_ = viper.BindPFlag("strict-host-key", rootCmd.PersistentFlags().Lookup("strict-host-key"))
	_ = viper.BindPFlag("conn-timeout", rootCmd.PersistentFlags().Lookup("conn-timeout"))
	viper.SetEnvPrefix("RIVET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		if v := viper.GetString("user"); v != "" {
			cfgUser = v
		}
		if v := viper.GetString("key"); v != "" {
			cfgKeyPath = v
		}
		if v := viper.GetString("known-hosts"); v != "" {
			cfgKnownHosts = v
		}
		if viper.GetBool("strict-host-key") {
			strictHostKey = true
		}
		if v := viper.GetDuration("conn-timeout"); v > 0 {
			connTimeout = v
		}
	})

	// Add subcommands
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(factsCmd)
}

// newOutput builds the output handler from the global flags.
func newOutput() *output.Output {
	out := output.New(os.Stdout)
	out.SetColor(!noColor)
	out.SetDebug(debug)
	return out
}

// connectShell dials target as user, with the key from --key or the
// default key, and routes the shell's diagnostics through out.
func connectShell(target, user, keyPath string, out *output.Output) (*remote.Shell, error) {
	if target == "" {
		return nil, fmt.Errorf("no target host given")
	}
	if user == "" {
		return nil, fmt.Errorf("no user given (--user or RIVET_USER)")
	}

	var id remote.Identity
	var err error
	if keyPath != "" {
		id, err = remote.KeyIdentity(user, keyPath)
	} else {
		id, err = remote.DefaultKeyProvider{}.Lookup(user)
	}
	if err != nil {
		return nil, err
	}

	if strictHostKey {
		cb, err := knownhosts.New(cfgKnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfgKnownHosts, err)
		}
		id.HostKey = cb
	}

	if !strings.Contains(target, ":") {
		target += ":22"
	}
	return remote.Connect(id, target,
		remote.WithDiagnostics(out.DiagWriter()),
		remote.WithDialTimeout(connTimeout))
}

// Exec-specific flags
var (
	execTarget     string
	execCwd        string
	execBash       bool
	execAllowError bool
	execTimeout    time.Duration
)

// execCmd runs a single command on a remote host
var execCmd = &cobra.Command{
	Use:   "exec --target <host> -- <command...>",
	Short: "Run one command on a remote host",
	Long: `Run a single command on a remote host and print its output.

Examples:
  rivet exec -t web1 -u admin -- uptime
  rivet exec -t web1 -u admin --cwd /var/log -- ls -la
  rivet exec -t web1 -u admin --bash -- 'dmesg | tail -20'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execTarget, "target", "t", "", "Target host, host or host:port")
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "Remote working directory for the command")
	execCmd.Flags().BoolVar(&execBash, "bash", false, "Run the command through bash (pipes, globs, redirection)")
	execCmd.Flags().BoolVar(&execAllowError, "allow-error", false, "Report a non-zero exit status instead of failing")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Give up waiting after this long; the remote command is abandoned, not killed. 0 disables")
}

func runExec(cmd *cobra.Command, args []string) error {
	out := newOutput()

	sh, err := connectShell(execTarget, cfgUser, cfgKeyPath, out)
	if err != nil {
		return err
	}
	defer sh.Close()
	sh.SetDryRun(dryRun)

	c := remote.Cmd(strings.Join(args, " "))
	if execCwd != "" {
		c = c.Cwd(execCwd)
	}
	if execBash {
		c = c.UseBash()
	}
	if execAllowError {
		c = c.AllowError()
	}

	result, err := execute(sh, c)
	if err != nil {
		var cmdErr *remote.CommandError
		if errors.As(err, &cmdErr) {
			os.Stdout.Write(cmdErr.Stdout)
			os.Stderr.Write(cmdErr.Stderr)
		}
		return err
	}

	os.Stdout.Write(result.Stdout)
	os.Stderr.Write(result.Stderr)
	if result.ExitStatus != 0 {
		os.Exit(result.ExitStatus)
	}
	return nil
}

// execute runs c on sh, spawning it when a timeout was requested so an
// expired wait leaves sh usable.
func execute(sh *remote.Shell, c remote.Command) (*remote.Output, error) {
	if execTimeout <= 0 {
		return sh.Execute(c)
	}

	handle, err := sh.Spawn(c)
	if err != nil {
		return nil, err
	}

	type joined struct {
		out *remote.Output
		err error
	}
	done := make(chan joined, 1)
	go func() {
		out, worker, err := handle.Join()
		if worker != nil {
			worker.Close()
		}
		done <- joined{out, err}
	}()

	select {
	case j := <-done:
		return j.out, j.err
	case <-time.After(execTimeout):
		return nil, fmt.Errorf("no result after %s, command abandoned", execTimeout)
	}
}

// runCmd executes a manifest
var runCmd = &cobra.Command{
	Use:   "run <manifest.yaml>",
	Short: "Run a manifest",
	Long: `Execute a manifest's steps against its target host, in order.

Examples:
  rivet run deploy.yaml
  rivet run deploy.yaml --debug
  rivet run deploy.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func runManifest(cmd *cobra.Command, args []string) error {
	m, err := manifest.ParseFile(args[0])
	if err != nil {
		return err
	}

	out := newOutput()

	keyPath := cfgKeyPath
	if m.Key != "" {
		keyPath = m.Key
	}
	sh, err := connectShell(m.Addr(), m.User, keyPath, out)
	if err != nil {
		return err
	}
	defer sh.Close()

	r := runner.New()
	r.Output = out
	r.DryRun = dryRun

	result, err := r.Run(sh, m)
	if err != nil {
		return err
	}
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// validateCmd validates manifests without running them
var validateCmd = &cobra.Command{
	Use:   "validate <manifest.yaml> [manifest2.yaml ...]",
	Short: "Validate one or more manifests",
	Long: `Parse and validate manifests without executing anything.

This checks for:
  - Valid YAML syntax
  - Required fields (target, user, step commands)
  - Parseable step timeouts
  - Resolvable {{ var }} references

Examples:
  rivet validate deploy.yaml
  rivet validate *.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateManifests,
}

func validateManifests(cmd *cobra.Command, args []string) error {
	var hasErrors bool

	for _, path := range args {
		if _, err := manifest.ParseFile(path); err != nil {
			fmt.Printf("FAIL: %s - %v\n", path, err)
			hasErrors = true
		} else {
			fmt.Printf("OK: %s\n", path)
		}
	}

	if hasErrors {
		return fmt.Errorf("one or more manifests failed validation")
	}

	fmt.Printf("\nAll %d manifest(s) valid.\n", len(args))
	return nil
}

// Facts-specific flags
var factsTarget string

// factsCmd gathers and prints system facts from a host
var factsCmd = &cobra.Command{
	Use:   "facts --target <host>",
	Short: "Gather system facts from a remote host",
	Long: `Connect to a host and print what rivet can discover about it:
OS family, distribution, kernel, architecture, hostname and user.

Examples:
  rivet facts -t web1 -u admin`,
	RunE: runFacts,
}

func init() {
	factsCmd.Flags().StringVarP(&factsTarget, "target", "t", "", "Target host, host or host:port")
}

func runFacts(cmd *cobra.Command, args []string) error {
	out := newOutput()

	sh, err := connectShell(factsTarget, cfgUser, cfgKeyPath, out)
	if err != nil {
		return err
	}
	defer sh.Close()

	gathered, err := facts.Gather(sh)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(gathered))
	for k := range gathered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%-16s %v\n", k, gathered[k])
	}
	return nil
}
