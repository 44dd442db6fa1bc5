package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID keys the machine ID hash so the raw machine ID isn't exposed.
const AppID = "framelink"

// MachineID retrieves the unique ID identifying the machine. It falls back
// to the host name where no machine ID is available (e.g. containers).
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return AppID
}
