package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/adapters/httpapi"
	"github.com/TheRookie24/ThermoCity/internal/adapters/postgres"
	"github.com/TheRookie24/ThermoCity/internal/app/config"
	"github.com/TheRookie24/ThermoCity/internal/app/runtime"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "migrate":
		err = migrateCommand(os.Args[2:])
	case "token":
		err = tokenCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("thermocity %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func migrateCommand(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	timeout := fs.Duration("timeout", 30*time.Second, "Migration timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate needs store.driver postgres, got %s", cfg.Store.Driver)
	}

	store, err := postgres.Open(cfg.Store.ConnString)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("schema applied")
	return nil
}

func tokenCommand(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file holding auth.jwt_secret")
	subject := fs.String("sub", "", "Token subject (user name)")
	role := fs.String("role", string(httpapi.RoleOps), "Role: viewer, ops, engineer or admin")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-sub is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tok, err := httpapi.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *subject, httpapi.Role(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	ports.MetricSamplesIngested,
	ports.MetricSamplesRejected,
	ports.MetricSnapshots,
	ports.MetricEventsOpened,
	ports.MetricMQTTConnected,
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(bufio.NewScanner(resp.Body), statsTargets)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] samples=%.0f rejected=%.0f snapshots=%.0f alerts=%.0f mqtt_up=%.0f\n",
		time.Now().Format(time.RFC3339),
		values[ports.MetricSamplesIngested],
		values[ports.MetricSamplesRejected],
		values[ports.MetricSnapshots],
		values[ports.MetricEventsOpened],
		values[ports.MetricMQTTConnected],
	)
	return nil
}

// scanMetrics picks unlabelled series out of the Prometheus text format.
func scanMetrics(scanner *bufio.Scanner, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range keys {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					out[key] = value
				}
			}
		}
	}
	return out, scanner.Err()
}

func printUsage() {
	fmt.Printf(`ThermoCity CLI

Usage:
  thermocity <command> [flags]

Commands:
  run        Start ingestion, KPI derivation, alerting and the HTTP API
  validate   Load and validate a config file without starting anything
  migrate    Apply the embedded Postgres schema
  token      Issue a signed API token for a user and role
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  thermocity run -config ./config.yaml
  thermocity migrate -config ./config.yaml
  thermocity token -config ./config.yaml -sub asha -role ops
  thermocity stats -url http://localhost:9100/metrics -interval 1s
`)
}
