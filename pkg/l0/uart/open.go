package uart

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
)

// ErrAddress indicates an unsupported device address.
var ErrAddress = errors.New("unsupported address")

// DialTimeout limits connecting to a network serial endpoint.
var DialTimeout = 5 * time.Second

// Open opens the byte stream of a device address:
//
//	loop://             in-memory loopback
//	tcp://host:port     network serial endpoint (e.g. ser2net)
//	/dev/ttyUSB0        device file, configured beforehand (e.g. stty)
//	file:///dev/ttyS0   same as above
func Open(addr string) (io.ReadWriteCloser, error) {
	scheme, rest := "file", addr
	if n := strings.Index(addr, "://"); n >= 0 {
		scheme, rest = addr[:n], addr[n+3:]
	}
	switch scheme {
	case "loop":
		return Loopback(), nil
	case "tcp", "tcp4", "tcp6", "unix":
		glog.V(2).Infof("uart: dial %s %s", scheme, rest)
		return net.DialTimeout(scheme, rest, DialTimeout)
	case "file":
		if rest == "" {
			break
		}
		glog.V(2).Infof("uart: open %s", rest)
		return os.OpenFile(rest, os.O_RDWR, 0)
	}
	return nil, fmt.Errorf("%w: %q", ErrAddress, addr)
}
