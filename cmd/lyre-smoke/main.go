// lyre-smoke exercises the full auth lifecycle against a running backend:
// CSRF bootstrap, login, token refresh, and logout. It is meant for staging
// checks after backend deploys.
//
// Usage:
//
//	lyre-smoke -base-url https://staging.lyrebird.example/api \
//	  -email smoke@lyrebird.example -password '...'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	lyreclient "github.com/lyrebirdhq/lyreclient"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "", "backend base URL (required)")
		email    = flag.String("email", "", "account email (required)")
		password = flag.String("password", "", "account password (required)")
		remember = flag.Bool("remember", false, "use the persistent credential scope")
		timeout  = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *baseURL == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "base-url, email, and password are required")
		os.Exit(2)
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := lyreclient.Config{}
	cfg.API.BaseURL = *baseURL
	cfg.API.Timeout = *timeout

	client, err := lyreclient.New().
		WithConfig(cfg).
		WithLogger(logger).
		Build()
	if err != nil {
		fatal("build", err)
	}
	defer client.Close()

	ctx := context.Background()

	step("bootstrap (no saved session)")
	if state := client.Bootstrap(ctx); state != lyreclient.StateUnauthenticated {
		fatal("bootstrap", fmt.Errorf("unexpected state %v", state))
	}

	step("login")
	user, err := client.Login(ctx, *email, *password, lyreclient.LoginOptions{RememberMe: *remember})
	if err != nil {
		fatal("login", err)
	}
	fmt.Printf("  signed in as %s (credits: %d)\n", user.Email, user.Credits)

	step("refresh")
	if err := client.RefreshAccessToken(ctx); err != nil {
		fatal("refresh", err)
	}

	step("logout")
	client.Logout(ctx)
	if state := client.State(); state != lyreclient.StateUnauthenticated {
		fatal("logout", fmt.Errorf("unexpected state %v", state))
	}

	fmt.Println("PASS")
}

func step(name string) { fmt.Println("==>", name) }

func fatal(stage string, err error) {
	fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", stage, err)
	os.Exit(1)
}
