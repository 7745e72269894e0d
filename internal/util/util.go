package util

import (
	"errors"
	"net"
	"sync/atomic"
)

// fallbackPort is handed out when the kernel cannot pick a free port.
var fallbackPort uint32 = 20000

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// GetUniquePort returns a port that was free a moment ago.
func GetUniquePort() int {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return int(atomic.AddUint32(&fallbackPort, 1))
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
