package api

import (
	"fmt"
	"net"
)

// BaseURLs returns best-effort http URLs for every non-loopback IPv4
// address on an up interface, for display to the operator ("connect your
// laptop to ..."). No usable address is not an error; the result is simply
// empty.
func BaseURLs(port int) []string {
	ifaces, err := net.Interfaces()
	if err != nil || port == 0 {
		return nil
	}

	var urls []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			urls = append(urls, fmt.Sprintf("http://%s:%d", ip4, port))
		}
	}
	return urls
}
