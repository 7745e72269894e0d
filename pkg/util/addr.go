package util

import (
	"net"
	"strconv"

	"github.com/kevindweb/loadgen/internal/constants"
)

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return constants.DefaultHost, constants.DefaultPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, constants.DefaultPort
	}
	return host, port
}
