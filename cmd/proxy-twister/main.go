package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	proxy "github.com/mlesin/proxy-twister"
)

// addrList is a repeatable flag.Value, following the pattern a small CLI
// surface in the corpus actually uses for multi-valued flags.
type addrList []string

func (a *addrList) String() string { return strings.Join(*a, ",") }

func (a *addrList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var listen addrList
	configPath := flag.String("config", "", "path to the JSON config file (required)")
	flag.Var(&listen, "listen", "listen address ADDR:PORT (repeatable)")
	flag.Var(&listen, "l", "listen address ADDR:PORT (repeatable, shorthand for --listen)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "proxy-twister: --config is required")
		return 64
	}
	if len(listen) == 0 {
		listen = addrList{"127.0.0.1:1080"}
	}

	setLogLevelFromEnv()

	snapshot, err := proxy.Load(*configPath)
	if err != nil {
		proxy.Errorf("config load failed: %v", err)
		return 1
	}
	proxy.Infof("config loaded from %s: %d profiles, %d rules", *configPath, len(snapshot.Profiles), len(snapshot.Router.Rules))

	cell := proxy.NewCell(snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		proxy.Infof("shutdown signal received, draining connections")
		cancel()
	}()

	go func() {
		if err := proxy.WatchAndReload(ctx, *configPath, cell); err != nil {
			proxy.Warnf("config watcher stopped: %v", err)
		}
	}()

	sup := &proxy.Supervisor{Cell: cell}
	if err := sup.Bind([]string(listen)); err != nil {
		proxy.Errorf("%v", err)
		return 2
	}

	sup.Serve(ctx)
	proxy.Infof("shutdown complete")
	return 0
}

func setLogLevelFromEnv() {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	proxy.SetLogLevel(proxy.Level(level))
}
