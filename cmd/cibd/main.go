// Command cibd runs one replication node: it serves the cluster
// endpoint, dispatches inbound requests and keeps the shared
// configuration document in sync with its peers.
package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/thinkermao/cibsync/cib"
	"github.com/thinkermao/cibsync/cib/core/peer"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/cluster"
)

type config struct {
	Name    string            `yaml:"name"`
	Listen  string            `yaml:"listen"`
	Primary bool              `yaml:"primary"`
	Legacy  bool              `yaml:"legacy"`
	Schema  string            `yaml:"schema"`
	Peers   map[string]string `yaml:"peers"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

func main() {
	var configPath string
	var logLevel string
	pflag.StringVar(&configPath, "config", "cibd.yaml", "path to the node configuration file")
	pflag.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pflag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", logLevel, err)
	}
	log.SetLevel(level)

	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	if config.Name == "" || config.Listen == "" {
		log.Fatalf("configuration must name the node and its listen address")
	}

	peers := make([]*peer.Node, 0, len(config.Peers))
	for name, url := range config.Peers {
		peers = append(peers, peer.MakeNode(name, url))
	}
	directory := peer.MakeDirectory(peers...)

	transport := cluster.MakeTransport(config.Name, config.Peers)
	defer transport.Close()

	done := make(chan struct{})
	node := cib.MakeNode(&cib.Config{
		Name:       config.Name,
		Primary:    config.Primary,
		Legacy:     config.Legacy,
		Schema:     config.Schema,
		OnShutdown: func() { close(done) },
	}, transport, directory)

	go func() {
		if err := transport.Listen(config.Listen, func(req *cibpd.Request) {
			node.Handle(req)
		}); err != nil {
			log.Fatalf("cluster endpoint failed: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Infof("%s received %v, requesting shutdown", config.Name, sig)
		if err := node.RequestShutdown(); err != nil {
			log.Warnf("shutdown handshake failed, terminating anyway: %v", err)
			return
		}
		// Wait for a peer to acknowledge, but not forever.
		select {
		case <-done:
		case <-signals:
			log.Warnf("second signal, terminating without handshake")
		}
	case <-done:
	}
}
