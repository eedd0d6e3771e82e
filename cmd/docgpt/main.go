// Package main provides the entry point for docgpt, a CLI that finds GitHub repositories
// without a README.md, drafts one with OpenAI, and commits it after the user signs in
// through a local OAuth callback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docgpt/docgpt/internal/buildinfo"
	"github.com/docgpt/docgpt/internal/cmd"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/logging"
	"github.com/docgpt/docgpt/internal/util"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var login bool
	var deviceLogin bool
	var logout bool
	var callbackServer bool
	var externalListener bool
	var noBrowser bool
	var force bool
	var oauthCallbackPort int
	var handoffDir string
	var configPath string
	var repo string
	var branch string
	var outputDir string
	var dryRun bool
	var yes bool
	var showVersion bool

	flag.BoolVar(&login, "login", false, "Login to GitHub using OAuth and exit")
	flag.BoolVar(&deviceLogin, "device-login", false, "Login to GitHub using the device flow")
	flag.BoolVar(&logout, "logout", false, "Remove the cached GitHub token")
	flag.BoolVar(&callbackServer, "callback-server", false, "Run only the OAuth callback listener for another docgpt process")
	flag.BoolVar(&externalListener, "external-listener", false, "Expect the callback listener to be started with -callback-server")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.BoolVar(&force, "force", false, "Ignore the cached token and sign in again")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port (defaults to an ephemeral port)")
	flag.StringVar(&handoffDir, "handoff-dir", "", "Directory for cross-process handoff records")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.StringVar(&repo, "repo", "", "Repository (name or owner/name) to generate a README for")
	flag.StringVar(&branch, "branch", "", "Branch to commit the README to (defaults to the repository default)")
	flag.StringVar(&outputDir, "output", "", "Directory generated READMEs are written to")
	flag.BoolVar(&dryRun, "dry-run", false, "Write the README locally without committing it")
	flag.BoolVar(&yes, "yes", false, "Commit without asking for confirmation")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")

	flag.Parse()

	if showVersion {
		fmt.Printf("docgpt Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfigOptional(configFilePath, configPath == "")
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	cfg.ApplyEnvOverrides(os.LookupEnv)
	if handoffDir != "" {
		cfg.Auth.HandoffDir = handoffDir
	}
	if externalListener {
		cfg.Auth.ExternalListener = true
	}
	if oauthCallbackPort > 0 {
		cfg.Auth.CallbackPort = oauthCallbackPort
	}
	cfg.SanitizeDefaults()

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}
	util.SetLogLevel(cfg)
	log.Debugf("docgpt %s (%s) using config %s", buildinfo.Version, buildinfo.Commit, configFilePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loginOptions := cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: oauthCallbackPort,
		Device:       deviceLogin,
		Force:        force,
	}

	switch {
	case callbackServer:
		err = cmd.RunCallbackServer(ctx, cfg, os.Stdout)
	case logout:
		err = cmd.DoLogout(ctx, cfg, os.Stdout)
	case login || deviceLogin:
		_, err = cmd.DoLogin(ctx, cfg, &loginOptions)
	default:
		err = cmd.DoGenerate(ctx, cfg, &cmd.GenerateOptions{
			LoginOptions: loginOptions,
			Repo:         repo,
			Branch:       branch,
			OutputDir:    outputDir,
			DryRun:       dryRun,
			Yes:          yes,
		})
	}
	if err != nil {
		log.Debugf("docgpt exited with error: %v", err)
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
