// Package plugin runs model backends as separate executables over
// hashicorp/go-plugin. A plugin binary calls Serve with its provider; the
// host opens it with Open and gets back a provider.Provider.
package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/memochat/internal/provider"
)

// HandshakeConfig is used to handshake between host and plugin.
var HandshakeConfig = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MEMOCHAT_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "memochat-backend",
}

const backendKey = "backend"

func pluginMap(impl provider.Provider) map[string]hcplugin.Plugin {
	return map[string]hcplugin.Plugin{
		backendKey: &BackendGRPCPlugin{Impl: impl},
	}
}

// Serve hands impl to the host process. It blocks until the host goes away.
func Serve(impl provider.Provider) {
	hcplugin.Serve(&hcplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         pluginMap(impl),
		GRPCServer:      hcplugin.DefaultGRPCServer,
	})
}

// Provider is a backend living in a plugin process.
type Provider struct {
	client  *hcplugin.Client
	backend *BackendGRPCClient
	name    string
}

// Open starts the plugin executable at path and connects to it.
func Open(path string, logger hclog.Logger) (*Provider, error) {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Output: os.Stderr,
			Level:  hclog.Warn,
		})
	}

	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          pluginMap(nil),
		Cmd:              exec.Command(path), // #nosec G204
		AllowedProtocols: []hcplugin.Protocol{hcplugin.ProtocolGRPC},
		Logger:           logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(backendKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense backend from %s: %w", path, err)
	}

	backend, ok := raw.(*BackendGRPCClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s returned unexpected type %T", path, raw)
	}

	return &Provider{
		client:  client,
		backend: backend,
		name:    "plugin:" + filepath.Base(path),
	}, nil
}

func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return p.backend.Complete(ctx, req)
}

func (p *Provider) Name() string {
	return p.name
}

// Close stops the plugin process.
func (p *Provider) Close() error {
	p.client.Kill()
	return nil
}
