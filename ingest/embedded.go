package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

var (
	ErrNotRunning = errors.New("embedded nats server is not running")
	ErrNotReady   = errors.New("embedded nats server is not ready for connections")
)

const readyTimeout = 5 * time.Second

type embeddedServerConfig struct {
	ServerName    string `koanf:"servername"`
	ListenPort    int    `koanf:"listenport"` // 0 = in-process connections only
	EnableLogging bool   `koanf:"enablelogging"`
}

// EmbeddedServer is a NATS server running inside this process, for local
// development and tests.
type EmbeddedServer struct {
	ns        *server.Server
	inProcess bool
}

// NewEmbeddedServer starts an embedded server configured from cfgPath and waits
// until it accepts connections.
func NewEmbeddedServer(cfg *config.Configuration, cfgPath string) (*EmbeddedServer, error) {
	serverConfig := embeddedServerConfig{
		ServerName: "taskworker_embedded",
	}
	if err := cfg.Unmarshal(cfgPath, &serverConfig); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	serverOpts := &server.Options{
		ServerName: serverConfig.ServerName,
		DontListen: serverConfig.ListenPort == 0,
		Port:       serverConfig.ListenPort,
		NoSigs:     true,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	if serverConfig.EnableLogging {
		ns.ConfigureLogger()
	}

	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, stacktrace.Wrap(ErrNotReady)
	}

	return &EmbeddedServer{
		ns:        ns,
		inProcess: serverOpts.DontListen,
	}, nil
}

func (s *EmbeddedServer) Name() string {
	return "embedded nats server " + s.ns.Name()
}

// Run blocks until ctx is done or the server stops on its own, then shuts it down.
func (s *EmbeddedServer) Run(ctx context.Context) error {
	defer s.Close()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.ns.Running() {
				return stacktrace.Wrap(ErrNotRunning)
			}
		}
	}
}

// NewConnection returns a new client connection. The caller closes it.
func (s *EmbeddedServer) NewConnection() (*nats.Conn, error) {
	var clientOpts []nats.Option
	if s.inProcess {
		clientOpts = append(clientOpts, nats.InProcessServer(s.ns))
	}

	nc, err := nats.Connect(s.ns.ClientURL(), clientOpts...)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	return nc, nil
}

// Close shuts the server down and waits for it. It is safe to call more than once.
func (s *EmbeddedServer) Close() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
