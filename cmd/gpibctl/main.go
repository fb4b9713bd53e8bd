// Command gpibctl talks to instruments on an IEEE-488 bus through a
// USB-attached bridge adapter. With GPIBCTL_COMMAND set it runs a single
// query and prints the reply; otherwise it drops into an interactive
// console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/mknr/usbgpib/internal/agilent"
	"github.com/mknr/usbgpib/internal/config"
	"github.com/mknr/usbgpib/internal/gpib"
)

func main() {
	logLevel := parseLogLevel(envStr("GPIBCTL_LOG_LEVEL", "info"))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	controllerAddr := envInt("GPIBCTL_CONTROLLER_ADDR", 10)
	instrumentAddr := envInt("GPIBCTL_INSTRUMENT_ADDR", 22)
	modelsPath := os.Getenv("GPIBCTL_MODELS")
	command := os.Getenv("GPIBCTL_COMMAND")

	models, err := config.LoadModels(modelsPath)
	if err != nil {
		slog.Error("failed to load adapter models", "path", modelsPath, "err", err)
		os.Exit(1)
	}

	registry := gpib.NewRegistry()
	for _, m := range models {
		if err := registry.Register(agilent.NewDriver(m)); err != nil {
			slog.Error("driver registration failed", "model", m.Name, "err", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	buses, err := registry.Discover(ctx)
	if err != nil {
		slog.Error("adapter discovery failed", "err", err)
		os.Exit(1)
	}
	if len(buses) == 0 {
		slog.Error("no GPIB adapter found", "err", gpib.ErrNoAdapter)
		os.Exit(1)
	}

	bus := buses[0]
	slog.Info("using adapter", "device", bus.ID())
	if err := bus.Open(ctx, controllerAddr); err != nil {
		slog.Error("adapter open failed", "err", err)
		os.Exit(1)
	}
	defer bus.Close()

	inst, err := bus.Instrument(instrumentAddr)
	if err != nil {
		slog.Error("invalid instrument address", "addr", instrumentAddr, "err", err)
		os.Exit(1)
	}
	cfg := gpib.DefaultTerminationConfig()
	cfg.EndReadOnEOS = true
	inst.Configure(cfg)

	if command != "" {
		reply, err := inst.Query(ctx, command)
		if err != nil {
			slog.Error("query failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		return
	}

	if err := console(ctx, bus, inst); err != nil {
		slog.Error("console error", "err", err)
		os.Exit(1)
	}
}

// console runs the interactive loop. A bare line is sent as a query;
// write and read issue one direction only.
func console(ctx context.Context, bus *gpib.Bus, inst *gpib.Session) error {
	rl, err := readline.New(fmt.Sprintf("gpib:%d> ", inst.Address()))
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Commands: write <data>, read, addr <n>, quit. Anything else is a query.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit":
			return nil
		case "read":
			reply, err := inst.Read(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("%q\n", reply)
		case "write":
			data := strings.TrimSpace(strings.TrimPrefix(line, "write"))
			if err := inst.Write(ctx, []byte(data)); err != nil {
				fmt.Println("error:", err)
			}
		case "addr":
			if len(parts) != 2 {
				fmt.Println("usage: addr <0-30>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("usage: addr <0-30>")
				continue
			}
			next, err := bus.Instrument(n)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			cfg := inst.Config()
			inst = next
			inst.Configure(cfg)
			rl.SetPrompt(fmt.Sprintf("gpib:%d> ", inst.Address()))
		default:
			reply, err := inst.Query(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if reply == "" {
				fmt.Println("(no reply)")
				continue
			}
			fmt.Println(reply)
		}
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
