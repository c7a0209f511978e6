package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	apiclient "github.com/livninoam/workday/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
}

const (
	defaultAPIBaseURL = "http://localhost:8000"
	requestTimeout    = 15 * time.Second
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "config":
		return commandConfig(rest, out)
	case "health":
		return commandHealth(rest, out)
	case "create":
		return commandCreate(rest, out)
	case "get":
		return commandGet(rest, out)
	case "update":
		return commandUpdate(rest, out)
	case "extend":
		return commandExtend(rest, out)
	case "delete":
		return commandDelete(rest, out)
	case "version", "--version", "-v":
		fmt.Fprintln(out, strings.TrimSpace(buildVersion))
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func commandConfig(args []string, out io.Writer) error {
	if len(args) != 2 || args[0] != "set-api" {
		return errors.New("usage: devenvctl config set-api <url>")
	}
	if _, err := apiclient.New(args[1]); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.APIBaseURL = strings.TrimSpace(args[1])
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "api base url set to %s\n", cfg.APIBaseURL)
	return nil
}

func commandHealth(args []string, out io.Writer) error {
	fs := newFlagSet("health")
	apiBase := fs.String("api", "", "API base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	msg, err := client.Health(ctx)
	if err != nil {
		return err
	}
	if err := client.Ready(ctx); err != nil {
		return fmt.Errorf("api reachable but not ready: %w", err)
	}
	fmt.Fprintln(out, msg)
	return nil
}

func commandCreate(args []string, out io.Writer) error {
	fs := newFlagSet("create")
	apiBase := fs.String("api", "", "API base URL")
	name := fs.String("name", "", "Environment name")
	owner := fs.String("owner", "", "Owner")
	group := fs.String("group", "", "Owning group")
	duration := fs.Int("duration", 0, "Duration")
	envType := fs.String("type", string(apiclient.EnvTypeDev), "Environment type (dev|stage)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	required := []struct{ flag, value string }{{"name", *name}, {"owner", *owner}, {"group", *group}}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("--%s is required", r.flag)
		}
	}
	d, err := toInt32("duration", *duration)
	if err != nil {
		return err
	}
	if !apiclient.EnvType(*envType).Valid() {
		return fmt.Errorf("--type must be dev or stage")
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	env, err := client.CreateEnv(ctx, apiclient.CreateInput{
		Name:     *name,
		Owner:    *owner,
		Group:    *group,
		Duration: d,
		EnvType:  apiclient.EnvType(*envType),
	})
	if err != nil {
		return err
	}
	return printEnv(out, env)
}

func commandGet(args []string, out io.Writer) error {
	fs := newFlagSet("get")
	apiBase := fs.String("api", "", "API base URL")
	envID := fs.String("id", "", "Environment identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*envID) == "" {
		return errors.New("--id is required")
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	env, err := client.GetEnv(ctx, *envID)
	if err != nil {
		return err
	}
	return printEnv(out, env)
}

func commandUpdate(args []string, out io.Writer) error {
	fs := newFlagSet("update")
	apiBase := fs.String("api", "", "API base URL")
	envID := fs.String("id", "", "Environment identifier")
	name := fs.String("name", "", "New name")
	owner := fs.String("owner", "", "New owner")
	group := fs.String("group", "", "New group")
	duration := fs.Int("duration", 0, "New duration")
	envType := fs.String("type", "", "New environment type (dev|stage)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*envID) == "" {
		return errors.New("--id is required")
	}

	// Only flags given on the command line become part of the update.
	var input apiclient.UpdateInput
	var visitErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			input.Name = name
		case "owner":
			input.Owner = owner
		case "group":
			input.Group = group
		case "duration":
			d, convErr := toInt32("duration", *duration)
			if convErr != nil {
				visitErr = convErr
				return
			}
			input.Duration = &d
		case "type":
			t := apiclient.EnvType(*envType)
			if !t.Valid() {
				visitErr = fmt.Errorf("--type must be dev or stage")
				return
			}
			input.EnvType = &t
		}
	})
	if visitErr != nil {
		return visitErr
	}

	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	env, err := client.UpdateEnv(ctx, *envID, input)
	if err != nil {
		return err
	}
	return printEnv(out, env)
}

func commandExtend(args []string, out io.Writer) error {
	fs := newFlagSet("extend")
	apiBase := fs.String("api", "", "API base URL")
	envID := fs.String("id", "", "Environment identifier")
	extra := fs.Int("by", 0, "Amount to add to the duration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*envID) == "" {
		return errors.New("--id is required")
	}
	by, err := toInt32("by", *extra)
	if err != nil {
		return err
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	env, err := client.ExtendEnv(ctx, *envID, by)
	if err != nil {
		return err
	}
	return printEnv(out, env)
}

func commandDelete(args []string, out io.Writer) error {
	fs := newFlagSet("delete")
	apiBase := fs.String("api", "", "API base URL")
	envID := fs.String("id", "", "Environment identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*envID) == "" {
		return errors.New("--id is required")
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	msg, err := client.DeleteEnv(ctx, *envID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	return nil
}

func toInt32(flagName string, v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("--%s out of range", flagName)
	}
	return int32(v), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// newClient resolves the API base URL from the flag, then DEVENV_API_URL,
// then the saved config file.
func newClient(override string) (*apiclient.Client, error) {
	base := strings.TrimSpace(override)
	if base == "" {
		base = strings.TrimSpace(os.Getenv("DEVENV_API_URL"))
	}
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		base = cfg.APIBaseURL
	}
	return apiclient.New(base)
}

func printEnv(out io.Writer, env apiclient.Env) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "devenvctl", "config.json"), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "devenvctl %s\n\n", buildVersion)
	fmt.Fprint(w, `Usage:
	devenvctl config set-api <url>
	devenvctl health [--api URL]
	devenvctl create --name <name> --owner <owner> --group <group> --duration N [--type dev|stage]
	devenvctl get --id <env-id>
	devenvctl update --id <env-id> [--name X] [--owner X] [--group X] [--duration N] [--type dev|stage]
	devenvctl extend --id <env-id> --by N
	devenvctl delete --id <env-id>
	devenvctl version

Every command accepts --api; DEVENV_API_URL overrides the saved config.
`)
}
