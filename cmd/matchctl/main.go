// Package main provides matchctl, an operator CLI for a game server's admin
// API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/duel/internal/adminclient"
)

const usage = `usage: matchctl [flags] <command> [args]

commands:
  health            show failing health checks
  stats             show server counters
  matches [state]   list matches, optionally only "waiting" or "active"
  match <id>        show one match
  end <id>          end a match and return its players to matchmaking
  lag <ms>          set the simulated input delay

flags:
`

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8090", "admin API base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	client := adminclient.New(*addr, *timeout)
	if err := run(client, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "matchctl: %v\n", err)
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("bad arguments")

func run(c *adminclient.Client, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "health":
		failures, err := c.Health()
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			return emit(map[string]string{"status": "healthy"})
		}
		if err := emit(failures); err != nil {
			return err
		}
		return errors.New("unhealthy")

	case "stats":
		stats, err := c.Stats()
		if err != nil {
			return err
		}
		return emit(stats)

	case "matches":
		state := ""
		if len(rest) > 0 {
			state = rest[0]
		}
		matches, err := c.Matches(state)
		if err != nil {
			return err
		}
		return emit(matches)

	case "match":
		if len(rest) != 1 {
			return fmt.Errorf("match needs an id: %w", errUsage)
		}
		m, err := c.Match(rest[0])
		if err != nil {
			return err
		}
		return emit(m)

	case "end":
		if len(rest) != 1 {
			return fmt.Errorf("end needs an id: %w", errUsage)
		}
		if err := c.EndMatch(rest[0]); err != nil {
			return err
		}
		fmt.Printf("ended %s\n", rest[0])
		return nil

	case "lag":
		if len(rest) != 1 {
			return fmt.Errorf("lag needs milliseconds: %w", errUsage)
		}
		ms, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return fmt.Errorf("parsing %q: %w", rest[0], errUsage)
		}
		out, err := c.SetLatency(ms)
		if err != nil {
			return err
		}
		return emit(out)

	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func emit(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
