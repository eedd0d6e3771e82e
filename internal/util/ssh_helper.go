package util

import (
	"fmt"
	"io"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

const unknownHost = "<this-host>"

// outboundHost names the address other machines most likely reach this host on: the
// local side of a UDP socket aimed at a public resolver. Connecting UDP sends nothing.
func outboundHost() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Debugf("outbound address lookup failed: %v", err)
		return unknownHost
	}
	defer func() { _ = conn.Close() }()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return unknownHost
}

// PrintSSHTunnelInstructions shows the port forward a browser on another machine needs
// for the loopback redirect to reach this host's callback listener.
func PrintSSHTunnelInstructions(w io.Writer, port int) {
	if w == nil || port <= 0 {
		return
	}
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(w, "If your browser runs on a different machine, forward the callback port first:\n%s\n  ssh -L %d:127.0.0.1:%d <user>@%s\n%s\n",
		rule, port, port, outboundHost(), rule)
}
