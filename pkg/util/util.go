package util

import (
	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/util"
	"github.com/kevindweb/loadgen/pkg/server"
	"github.com/kevindweb/loadgen/pkg/store"
)

// StartUniqueServer starts a mock store on a free port and returns store
// options pointing at it.
func StartUniqueServer(driver string) (store.Options, *server.Server, error) {
	s, err := server.StartOptions(server.Options{
		Host:    constants.DefaultHost,
		Port:    util.GetUniquePort(),
		Network: constants.DefaultNetwork,
	})
	if err != nil {
		return store.Options{}, nil, err
	}

	return StoreOptions(s, driver), s, nil
}

// StoreOptions builds store options for a running mock store.
func StoreOptions(s *server.Server, driver string) store.Options {
	host, port := splitAddr(s.Addr())
	return store.Options{
		Host:             host,
		Port:             port,
		Network:          constants.DefaultNetwork,
		Driver:           driver,
		DialTimeout:      constants.DialTimeout,
		OperationTimeout: constants.OperationTimeout,
	}
}
