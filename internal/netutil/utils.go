// Package netutil carries the small network/resource helpers adapted
// from the teacher's shared/utils.go. The robot-factory registration half
// of that file (AddRobotType/ROBOT_FACTORY) has no home here — this
// daemon owns exactly one Robot Session, never a registry of robot types.
package netutil

import (
	"net"
	"reflect"
	"sync"

	"github.com/Nat3z/Daybreak/internal/logging"
)

// GetLocalIPs returns the host's active, non-loopback IPv4 addresses —
// used at startup to tell the operator where the robot can reach this
// machine from.
func GetLocalIPs() []string {
	var ips []string

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			ips = append(ips, ip.String())
		}
	}

	return ips
}

var channelCloseMutex sync.Mutex

// SafeClose closes closer without panicking: objects with a Close()
// method use it, channels are closed via SafeCloseChannel, nil is
// ignored.
func SafeClose(closer interface{}) {
	if closer == nil {
		return
	}
	if c, ok := closer.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logging.DebugPrint("error closing resource: %v", err)
		}
		return
	}
	SafeCloseChannel(closer)
}

// SafeCloseChannel closes ch without panicking if it is already closed
// or nil. Concurrent close attempts are serialized.
func SafeCloseChannel(ch interface{}) {
	if ch == nil {
		return
	}

	val := reflect.ValueOf(ch)
	if val.Kind() != reflect.Chan {
		logging.DebugPrint("SafeCloseChannel: not a channel, type: %T", ch)
		return
	}

	channelCloseMutex.Lock()
	defer channelCloseMutex.Unlock()

	if !isChannelClosed(val) {
		val.Close()
	}
}

func isChannelClosed(ch reflect.Value) bool {
	if ch.Kind() != reflect.Chan {
		return true
	}
	chosen, _, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: ch},
		{Dir: reflect.SelectDefault},
	})
	return chosen == 0 && !ok
}
