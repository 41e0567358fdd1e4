// Command report logs in to the card API as an administrator and prints the
// admin reports as JSON. It uses the same fetch policy as the portal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/dashboard"
	"cardhub/internal/session"
	"cardhub/pkg/config"
	"cardhub/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	cfg := config.Load()

	username := flag.String("username", os.Getenv("REPORT_USERNAME"), "admin username")
	password := flag.String("password", os.Getenv("REPORT_PASSWORD"), "admin password")
	view := flag.String("view", "report", "report | dashboard")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	log := logger.NewWithWriter("cardhub-report", os.Stderr, logger.ParseLevel(cfg.LogLevel))

	if err := cfg.ValidateCore(); err != nil {
		log.Error("Invalid configuration", map[string]interface{}{"error": err.Error()})
		return 2
	}
	if *username == "" || *password == "" {
		log.Error("username and password are required", nil)
		return 2
	}
	if *view != "report" && *view != "dashboard" {
		log.Error("Unknown view", map[string]interface{}{"view": *view})
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := apiclient.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout,
		apiclient.WithRetry(cfg.Upstream.MaxRetries, cfg.Upstream.RetryDelay),
		apiclient.WithLogger(log),
	)
	sessions := session.NewManager(client, session.NewMemoryStore(), session.NewMemoryRevoker(), cfg.Session.TTL, log)

	sess, err := sessions.Login(ctx, &apiclient.LoginRequest{Username: *username, Password: *password})
	if err != nil {
		log.Error("Login failed", map[string]interface{}{"error": err.Error()})
		return 1
	}
	defer func() {
		if err := sessions.Logout(context.Background(), sess.ID); err != nil {
			log.Warn("Logout failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	svc := dashboard.NewService(client, nil, dashboard.Policy{
		PageSize:        cfg.Stats.PageSize,
		MaxPages:        cfg.Stats.MaxPages,
		DisplayPageSize: cfg.Stats.DisplayPageSize,
	}, log)

	var out interface{}
	if *view == "dashboard" {
		out, err = svc.AdminDashboard(ctx, sess)
	} else {
		out, err = svc.Report(ctx, sess)
	}
	if err != nil {
		log.Error("Report failed", map[string]interface{}{"error": err.Error()})
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("Encode failed", map[string]interface{}{"error": err.Error()})
		return 1
	}
	return 0
}
