package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aussiebroadwan/bouncer/internal/cli/app"
	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "login", "status", "refresh", "logout", "whoami", "totp":
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	runErr := run(ctx, application, command, os.Args[2:])
	_ = application.Close()
	if runErr != nil {
		log.Fatalf("%s: %v", command, runErr)
	}
}

func run(ctx context.Context, application *app.App, command string, args []string) error {
	switch command {
	case "login":
		flags := flag.NewFlagSet("login", flag.ExitOnError)
		scopes := flags.String("scopes", "", "comma separated scopes to request beyond the defaults")
		mfa := flags.String("mfa", "", "require a factor: otp, sms or totp")
		flags.Parse(args)
		return application.Login(ctx, splitScopes(*scopes), bouncer.MFAType(*mfa))

	case "status":
		return application.Status(ctx)

	case "refresh":
		return application.Refresh(ctx)

	case "logout":
		return application.Logout(ctx)

	case "whoami":
		flags := flag.NewFlagSet("whoami", flag.ExitOnError)
		verify := flags.Bool("verify", false, "check the id token signature against the provider's keys")
		flags.Parse(args)
		return application.WhoAmI(ctx, *verify)

	case "totp":
		flags := flag.NewFlagSet("totp", flag.ExitOnError)
		flags.Parse(args)
		if flags.NArg() != 1 {
			return fmt.Errorf("usage: bouncer totp <otpauth-url>")
		}
		return application.TOTP(flags.Arg(0))

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func printUsage() {
	fmt.Println("bouncer - sign in to the tab from a terminal")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bouncer login [--scopes a,b] [--mfa otp|sms|totp]   Sign in via the browser")
	fmt.Println("  bouncer status                                      Show the current session")
	fmt.Println("  bouncer refresh                                     Force a token refresh")
	fmt.Println("  bouncer logout                                      Remove the stored session")
	fmt.Println("  bouncer whoami [--verify]                           Print the ID token claims")
	fmt.Println("  bouncer totp <otpauth-url>                          Generate a one-time code")
	fmt.Println()
	fmt.Println("Configuration is read from bouncer.yaml (override with BOUNCER_CONFIG)")
	fmt.Println("and BOUNCER_* environment variables.")
}
