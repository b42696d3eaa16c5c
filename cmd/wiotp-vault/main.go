package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"watsoniot-bridge/go-backend/internal/apikeys"
	"watsoniot-bridge/go-backend/internal/config"
	"watsoniot-bridge/go-backend/internal/securestore"
	"watsoniot-bridge/go-backend/internal/session"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitVaultFailed  = 20
)

var stdin = bufio.NewReader(os.Stdin)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "add":
		runAdd(os.Args[2:])
	case "remove":
		runRemove(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

type vaultFlags struct {
	path          *string
	passphraseEnv *string
}

func newFlagSet(name string) (*pflag.FlagSet, vaultFlags) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	return fs, vaultFlags{
		path:          fs.String("vault", os.Getenv("WIOTP_VAULT_PATH"), "vault file path"),
		passphraseEnv: fs.String("passphrase-env", config.DefaultPassphraseEnv, "environment variable holding the passphrase"),
	}
}

func (f vaultFlags) open() *apikeys.Vault {
	if strings.TrimSpace(*f.path) == "" {
		writeStderrln("--vault is required", exitInvalidInput)
	}
	passphrase := os.Getenv(*f.passphraseEnv)
	if passphrase == "" {
		var err error
		passphrase, err = promptSecret("Vault passphrase: ")
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
	}
	v, err := apikeys.OpenVault(*f.path, passphrase, securestore.DefaultParams)
	if err != nil {
		if errors.Is(err, securestore.ErrAuthFailed) {
			err = errors.New("wrong passphrase or corrupted vault")
		}
		writeStderrln(err.Error(), exitVaultFailed)
	}
	return v
}

func runAdd(args []string) {
	fs, vf := newFlagSet("add")
	user := fs.String("user", "", "API key (a-<org>-<suffix>)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		writeStderrln("usage: wiotp-vault add <id> --user <api-key>", exitInvalidInput)
	}
	if strings.TrimSpace(*user) == "" {
		writeStderrln("--user is required", exitInvalidInput)
	}
	v := vf.open()
	token, err := promptSecret("API token: ")
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if token == "" {
		writeStderrln(apikeys.ErrEmptyToken.Error(), exitInvalidInput)
	}
	if err := v.Put(id, session.APIKey{User: strings.TrimSpace(*user), Password: token}); err != nil {
		code := exitVaultFailed
		var parseErr *session.OrgParseError
		if errors.As(err, &parseErr) || errors.Is(err, apikeys.ErrEmptyToken) {
			code = exitInvalidInput
		}
		writeStderrln(err.Error(), code)
	}
	if err := printJSON(map[string]any{"added": id}); err != nil {
		writeStderrln(err.Error(), exitVaultFailed)
	}
	os.Exit(exitOK)
}

func runRemove(args []string) {
	fs, vf := newFlagSet("remove")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		writeStderrln("usage: wiotp-vault remove <id>", exitInvalidInput)
	}
	v := vf.open()
	if err := v.Delete(id); err != nil {
		code := exitVaultFailed
		if errors.Is(err, apikeys.ErrNotFound) {
			code = exitInvalidInput
		}
		writeStderrln(err.Error(), code)
	}
	if err := printJSON(map[string]any{"removed": id}); err != nil {
		writeStderrln(err.Error(), exitVaultFailed)
	}
	os.Exit(exitOK)
}

func runList(args []string) {
	fs, vf := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	v := vf.open()
	if err := printJSON(map[string]any{"ids": v.IDs()}); err != nil {
		writeStderrln(err.Error(), exitVaultFailed)
	}
	os.Exit(exitOK)
}

// promptSecret reads without echo from a terminal, or one line from a pipe.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		_, _ = fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s%w", strings.ToLower(prompt), err)
	}
	return strings.TrimSpace(line), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStderrln(msg string, code int) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}

func printUsage() {
	_, _ = fmt.Fprintln(os.Stderr, "usage: wiotp-vault <add|remove|list> [--vault path] [--passphrase-env NAME]")
}
