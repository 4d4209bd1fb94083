package ingest

import (
	"github.com/nats-io/nats.go"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

type connectionConfig struct {
	Address         string
	Name            string
	CredentialsPath string `koanf:"credentialspath"` // .creds file
	UserJWT         string `koanf:"userjwt"`         // or the JWT and seed given directly
	NKeySeed        string `koanf:"nkeyseed"`
}

// NewConnection connects to the NATS server described at cfgPath.
func NewConnection(cfg *config.Configuration, cfgPath string) (*nats.Conn, error) {
	connConfig := connectionConfig{
		Address: nats.DefaultURL,
		Name:    "taskworker",
	}
	if err := cfg.Unmarshal(cfgPath, &connConfig); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	connOpts := []nats.Option{nats.Name(connConfig.Name)}
	if connConfig.CredentialsPath != "" {
		connOpts = append(connOpts, nats.UserCredentials(connConfig.CredentialsPath))
	} else if connConfig.UserJWT != "" && connConfig.NKeySeed != "" {
		connOpts = append(connOpts, nats.UserJWTAndSeed(connConfig.UserJWT, connConfig.NKeySeed))
	}

	nc, err := nats.Connect(connConfig.Address, connOpts...)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	return nc, nil
}
