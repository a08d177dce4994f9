package addrutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AdvertiseAddr picks the host:port a city registers with the directory.
//
// advertise may be a full host:port, a bare host, a bare ":port" or empty.
// Missing parts are filled from publicHost (typically discovered via STUN)
// and from the actual command listener address. An unspecified listener host
// (0.0.0.0, ::) falls back to loopback so a local directory can still reach it.
func AdvertiseAddr(advertise, listenAddr, publicHost string) (string, error) {
	advHost, advPort := splitLoose(advertise)
	listenHost, listenPort := splitLoose(listenAddr)

	port := advPort
	if port == "" {
		port = listenPort
	}
	if port == "" || port == "0" {
		return "", fmt.Errorf("no command port in advertise=%q listen=%q", advertise, listenAddr)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid port %q", port)
	}

	host := advHost
	if host == "" {
		host = strings.TrimSpace(publicHost)
	}
	if host == "" && !isUnspecified(listenHost) {
		host = listenHost
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

// splitLoose splits host:port, accepting a bare host or unbracketed IPv6.
func splitLoose(addr string) (string, string) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", ""
	}

	if h, p, err := net.SplitHostPort(a); err == nil {
		return h, p
	}

	// Unbracketed IPv6 "host:port": peel off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if ip := net.ParseIP(a); ip != nil {
			return a, ""
		}
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil {
				return a[:last], a[last+1:]
			}
		}
	}

	return strings.Trim(a, "[]"), ""
}

func isUnspecified(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
