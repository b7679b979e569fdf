package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"

	"github.com/vennwood/revenant/internal/network"
	"github.com/vennwood/revenant/internal/protocol"
)

var spewConfig = spew.ConfigState{Indent: "  ", SortKeys: true}

// stream is one direction of one TCP flow: its own frame reassembly buffer
// and its own encryption state.
type stream struct {
	framer    network.Framer
	encrypted bool
}

type sniffer struct {
	serverPorts map[uint16]bool
	out         io.Writer

	streams map[string]*stream
}

func newSniffer(serverPorts map[uint16]bool, out io.Writer) *sniffer {
	return &sniffer{
		serverPorts: serverPorts,
		out:         out,
		streams:     make(map[string]*stream),
	}
}

func (s *sniffer) startReading(packetChan chan gopacket.Packet) {
	for packet := range packetChan {
		app := packet.ApplicationLayer()
		if app == nil || len(app.Payload()) == 0 {
			continue
		}

		flow := packet.TransportLayer().TransportFlow()
		srcPort := binary.BigEndian.Uint16(flow.Src().Raw())
		dstPort := binary.BigEndian.Uint16(flow.Dst().Raw())

		// A packet headed toward a watched port came from the client.
		clientPacket := s.serverPorts[dstPort]
		if !clientPacket && !s.serverPorts[srcPort] {
			continue
		}

		s.handlePayload(flow.String(), clientPacket, app.Payload())
	}
}

func (s *sniffer) handlePayload(flowKey string, clientPacket bool, data []byte) {
	st, ok := s.streams[flowKey]
	if !ok {
		st = &stream{}
		s.streams[flowKey] = st
	}

	// The session keys are negotiated out of band, so once a stream goes
	// encrypted there is nothing left to decode.
	if st.encrypted {
		return
	}

	for _, frame := range st.framer.Feed(data) {
		s.printFrame(clientPacket, frame)

		if !clientPacket && frameOpcode(clientPacket, frame) == protocol.WorldAuthResponseType {
			st.encrypted = true
			fmt.Fprintf(s.out, "[%s] stream encrypted from here on\n", flowKey)
			st.framer.Reset()
			return
		}
	}
}

// frameOpcode reads the direction-appropriate opcode header: 4 bytes from
// the client, 2 from the server.
func frameOpcode(clientPacket bool, frame []byte) protocol.Opcode {
	if clientPacket {
		if len(frame) < 4 {
			return 0
		}
		return protocol.Opcode(binary.LittleEndian.Uint32(frame))
	}
	if len(frame) < 2 {
		return 0
	}
	return protocol.Opcode(binary.LittleEndian.Uint16(frame))
}

func (s *sniffer) printFrame(clientPacket bool, frame []byte) {
	opcode := frameOpcode(clientPacket, frame)

	direction := "server->client"
	payload := frame[min(2, len(frame)):]
	if clientPacket {
		direction = "client->server"
		payload = frame[min(4, len(frame)):]
	}

	fmt.Fprintf(s.out, "%s %v (0x%04X), %d bytes\n%s",
		direction, opcode, uint16(opcode), len(payload), spewConfig.Sdump(payload))
}
