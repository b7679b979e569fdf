// The sniffer command captures live traffic between a game client and the
// target servers and prints the decoded frames with their opcode names.
// Handy for comparing the agent's traffic against the real client's.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

var (
	device = flag.String("d", "en0", "Device on which to listen for packets")
	ports  = flag.String("p", "3724,8085", "Comma-separated server ports to watch")
)

func main() {
	flag.Parse()

	serverPorts, err := parsePorts(*ports)
	if err != nil {
		exit("invalid ports: %v", err)
	}

	handle, err := pcap.OpenLive(*device, math.MaxInt32, false, pcap.BlockForever)
	if err != nil {
		exit("error opening handle: %v", err)
	}
	_ = handle.SetBPFFilter("tcp and (" + portFilter(serverPorts) + ")")

	s := newSniffer(serverPorts, os.Stdout)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	s.startReading(packetSource.Packets())
}

func exit(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func parsePorts(list string) (map[uint16]bool, error) {
	serverPorts := make(map[uint16]bool)
	for _, p := range strings.Split(list, ",") {
		var port uint16
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &port); err != nil {
			return nil, fmt.Errorf("bad port %q", p)
		}
		serverPorts[port] = true
	}
	return serverPorts, nil
}

func portFilter(serverPorts map[uint16]bool) string {
	clauses := make([]string, 0, len(serverPorts))
	for port := range serverPorts {
		clauses = append(clauses, fmt.Sprintf("port %d", port))
	}
	return strings.Join(clauses, " or ")
}
