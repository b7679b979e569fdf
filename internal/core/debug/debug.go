// Debugging utilities for the agent: a pprof server, decoded-packet
// logging, and an exporter that forwards traffic to an external packet
// analyzer. Everything here is gated on the debugging config section.
package debug

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Enabled returns whether or not the agent was set to debug mode.
func Enabled() bool {
	return viper.GetBool("debugging.enabled")
}

// PacketLoggingEnabled returns whether decoded packets should be logged.
func PacketLoggingEnabled() bool {
	return viper.GetBool("debugging.packet_logging_enabled")
}

// PacketAnalyzerAddress returns the host:port of the external analyzer, or
// an empty string if none is configured.
func PacketAnalyzerAddress() string {
	return viper.GetString("debugging.packet_analyzer_address")
}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(log *zap.SugaredLogger) {
	if !Enabled() {
		return
	}

	startPprofServer(log)

	if PacketAnalyzerAddress() != "" {
		go startAnalyzerExporter(log)
	}
}

// This function starts the default pprof HTTP server that can be accessed
// via localhost to get runtime information about the agent.
// See https://golang.org/pkg/net/http/pprof/
func startPprofServer(log *zap.SugaredLogger) {
	listenerAddr := fmt.Sprintf("localhost:%s", viper.GetString("debugging.pprof_port"))
	log.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			log.Infof("error starting pprof server: %s", err)
		}
	}()
}

var spewConfig = spew.ConfigState{Indent: "  ", SortKeys: true}

// DumpPacket writes one decoded packet to the debug log and, when an
// analyzer is configured, queues it for export. source and destination name
// the endpoints the packet traveled between.
func DumpPacket(log *zap.SugaredLogger, source, destination string, opcode uint16, name string, payload []byte) {
	log.Debugf("%s->%s %s (0x%04X)\n%s", source, destination, name, opcode, spewConfig.Sdump(payload))

	if PacketAnalyzerAddress() != "" {
		queuePacketForAnalyzer(source, destination, opcode, payload)
	}
}

type packetAnalyzerRequest struct {
	AgentName   string
	Source      string
	Destination string
	Opcode      uint16
	Contents    []int
}

var packetAnalyzerChan = make(chan packetAnalyzerRequest, 10)

func queuePacketForAnalyzer(source, destination string, opcode uint16, payload []byte) {
	contents := make([]int, len(payload))
	for i, b := range payload {
		contents[i] = int(b)
	}

	req := packetAnalyzerRequest{
		AgentName:   "revenant",
		Source:      source,
		Destination: destination,
		Opcode:      opcode,
		Contents:    contents,
	}

	// Drop rather than stall the receive path when the exporter is behind.
	select {
	case packetAnalyzerChan <- req:
	default:
	}
}

func startAnalyzerExporter(log *zap.SugaredLogger) {
	for {
		packet := <-packetAnalyzerChan

		reqBytes, _ := json.Marshal(&packet)
		httpClient := http.Client{Timeout: time.Second}

		// We don't care if the packets don't get through.
		r, err := httpClient.Post(
			"http://"+PacketAnalyzerAddress(),
			"application/json",
			bytes.NewBuffer(reqBytes),
		)

		if err != nil {
			log.Warnf("failed to send packet to analyzer: %v", err)
		} else if r.StatusCode != 200 {
			log.Warnf("failed to send packet to analyzer: %v", r.Body)
		}
	}
}
