/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cli implements the netpresence command-line tool.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/bcrypt"

	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	defaultCost    = 12
	minCost        = 4
	maxCost        = 31
	defaultAPIURL  = "http://localhost:8090"
	defaultTimeout = 30 * time.Second

	envAPIURL = "NETPRESENCE_API_URL"
	envAPIKey = "NETPRESENCE_API_KEY"
)

// Supported subcommands.
const (
	cmdDigest     = "digest"
	cmdDevices    = "devices"
	cmdHistory    = "history"
	cmdScan       = "scan"
	cmdHashKey    = "hash-key"
	cmdTestNotify = "test-notify"
)

// SubcommandHandler defines the interface for parsing subcommand flags.
type SubcommandHandler interface {
	Parse(args []string, cfg *CmdConfig) error
}

func addAPIFlags(fs *flag.FlagSet, cfg *CmdConfig) {
	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	fs.StringVar(&cfg.APIURL, "api", apiURL, "netpresence API base URL (env "+envAPIURL+")")
	fs.StringVar(&cfg.APIKey, "api-key", os.Getenv(envAPIKey), "API key (env "+envAPIKey+")")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "request timeout")
}

// DigestHandler parses flags for the digest subcommand.
type DigestHandler struct{}

// Parse implements SubcommandHandler.
func (DigestHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdDigest, flag.ContinueOnError)
	fs.StringVar(&cfg.Login, "login", "", "router login")
	fs.StringVar(&cfg.Realm, "realm", "", "realm header returned by /auth")
	fs.StringVar(&cfg.Password, "password", "", "router password (read from stdin when omitted)")
	fs.StringVar(&cfg.Challenge, "challenge", "", "challenge header returned by /auth")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "print the digest instead of opening the form")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Args = fs.Args()

	return nil
}

// DevicesHandler parses flags for the devices subcommand.
type DevicesHandler struct{}

// Parse implements SubcommandHandler.
func (DevicesHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdDevices, flag.ContinueOnError)
	addAPIFlags(fs, cfg)
	fs.BoolVar(&cfg.All, "all", false, "include offline devices")

	return parseNoArgs(fs, args)
}

// HistoryHandler parses flags for the history subcommand.
type HistoryHandler struct{}

// Parse implements SubcommandHandler.
func (HistoryHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdHistory, flag.ContinueOnError)
	addAPIFlags(fs, cfg)
	fs.StringVar(&cfg.MAC, "mac", "", "only events of this MAC")
	fs.IntVar(&cfg.Limit, "limit", models.DefaultHistoryLimit, "number of events")

	if err := parseNoArgs(fs, args); err != nil {
		return err
	}

	if cfg.Limit <= 0 {
		return errInvalidLimit
	}

	return nil
}

// ScanHandler parses flags for the scan subcommand.
type ScanHandler struct{}

// Parse implements SubcommandHandler.
func (ScanHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdScan, flag.ContinueOnError)
	addAPIFlags(fs, cfg)

	return parseNoArgs(fs, args)
}

// TestNotifyHandler parses flags for the test-notify subcommand.
type TestNotifyHandler struct{}

// Parse implements SubcommandHandler.
func (TestNotifyHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdTestNotify, flag.ContinueOnError)
	addAPIFlags(fs, cfg)

	return parseNoArgs(fs, args)
}

// HashKeyHandler parses flags for the hash-key subcommand.
type HashKeyHandler struct{}

// Parse implements SubcommandHandler.
func (HashKeyHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(cmdHashKey, flag.ContinueOnError)
	fs.IntVar(&cfg.Cost, "cost", defaultCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Args = fs.Args()

	return nil
}

func parseNoArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s", errUnexpectedInput, strings.Join(fs.Args(), " "))
	}

	return nil
}

// ParseFlags parses the subcommand and its flags from args (without the program name).
func ParseFlags(args []string) (*CmdConfig, error) {
	cfg := &CmdConfig{}

	if len(args) == 0 {
		return cfg, errMissingCommand
	}

	switch args[0] {
	case "-h", "-help", "--help", "help":
		cfg.Help = true
		return cfg, nil
	}

	cfg.SubCmd = args[0]

	subcommands := map[string]SubcommandHandler{
		cmdDigest:     DigestHandler{},
		cmdDevices:    DevicesHandler{},
		cmdHistory:    HistoryHandler{},
		cmdScan:       ScanHandler{},
		cmdHashKey:    HashKeyHandler{},
		cmdTestNotify: TestNotifyHandler{},
	}

	handler, ok := subcommands[cfg.SubCmd]
	if !ok {
		return cfg, fmt.Errorf("%w: %s", errUnknownCommand, cfg.SubCmd)
	}

	if err := handler.Parse(args[1:], cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Run executes the parsed subcommand.
func Run(ctx context.Context, cfg *CmdConfig, stdin io.Reader, stdout io.Writer) error {
	switch cfg.SubCmd {
	case cmdDigest:
		return RunDigest(cfg, stdin, stdout)
	case cmdHashKey:
		return RunHashKey(cfg, stdin, stdout)
	case cmdDevices, cmdHistory, cmdScan, cmdTestNotify:
		client, err := NewAPIClient(cfg.APIURL, cfg.APIKey, cfg.Timeout)
		if err != nil {
			return err
		}

		return runAPICommand(ctx, client, cfg, stdout)
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, cfg.SubCmd)
	}
}

func runAPICommand(ctx context.Context, client *APIClient, cfg *CmdConfig, stdout io.Writer) error {
	switch cfg.SubCmd {
	case cmdDevices:
		devices, err := client.Devices(ctx, cfg.All)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(stdout, renderDevices(devices))

		return err
	case cmdHistory:
		events, err := client.History(ctx, cfg.MAC, cfg.Limit)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(stdout, renderEvents(events))

		return err
	case cmdTestNotify:
		resp, err := client.TestNotify(ctx)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(stdout, renderTestNotify(resp))

		return err
	default:
		resp, err := client.Scan(ctx)
		if resp != nil {
			if _, werr := fmt.Fprintln(stdout, renderScan(resp)); werr != nil {
				return werr
			}
		}

		return err
	}
}

// RunDigest prints the router digest, or opens the interactive form.
func RunDigest(cfg *CmdConfig, stdin io.Reader, stdout io.Writer) error {
	if !cfg.NonInteractive {
		p := tea.NewProgram(initialDigestModel(cfg), tea.WithAltScreen())
		_, err := p.Run()

		return err
	}

	if cfg.Login == "" || cfg.Realm == "" || cfg.Challenge == "" {
		return errDigestFields
	}

	password := cfg.Password
	if password == "" {
		var err error

		password, err = readSecret(cfg.Args, stdin)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	_, err := fmt.Fprintln(stdout, keenetic.ComputeDigest(cfg.Login, cfg.Realm, password, cfg.Challenge))

	return err
}

// RunHashKey prints a bcrypt hash suitable for api.api_key_hash.
func RunHashKey(cfg *CmdConfig, stdin io.Reader, stdout io.Writer) error {
	key, err := readSecret(cfg.Args, stdin)
	if err != nil {
		return fmt.Errorf("reading key: %w", err)
	}

	if key == "" {
		return errEmptyKey
	}

	cost := cfg.Cost
	if cost == 0 {
		cost = defaultCost
	}

	hash, err := generateBcrypt(key, cost)
	if err != nil {
		return fmt.Errorf("generating bcrypt hash: %w", err)
	}

	_, err = fmt.Fprintln(stdout, hash)

	return err
}

func generateBcrypt(secret string, cost int) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errEmptyPassword
	}

	if cost < minCost || cost > maxCost {
		return "", errInvalidCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errHashFailed, err.Error())
	}

	return string(hash), nil
}

// readSecret takes the secret from the positional args, or from stdin when it
// is piped.
func readSecret(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if f, ok := stdin.(*os.File); ok && IsInputFromTerminal(f) {
		return "", nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// IsInputFromTerminal determines if input is coming from a terminal or being piped/redirected.
func IsInputFromTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}

	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
