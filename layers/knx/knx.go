// Package knx carries the built-in KNXnet/IP specification and the
// helpers that craft, exchange and dissect KNX frames over UDP.
//
// The wire layout lives in knxnet.yaml and follows KNX Standard v2.1.
// Everything here goes through the generic frame engine, so a crafted
// message stays editable field by field right up to the send.
package knx

import (
	_ "embed"
	"sync"

	"github.com/jcalloway/framecraft/spec"
)

// Default KNXnet/IP network parameters.
const (
	Port          = 3671
	MulticastAddr = "224.0.23.12"
)

// Frame type names as declared in the embedded specification.
const (
	TypeSearchRequest           = "SEARCH REQUEST"
	TypeSearchResponse          = "SEARCH RESPONSE"
	TypeDescriptionRequest      = "DESCRIPTION REQUEST"
	TypeDescriptionResponse     = "DESCRIPTION RESPONSE"
	TypeConnectRequest          = "CONNECT REQUEST"
	TypeConnectResponse         = "CONNECT RESPONSE"
	TypeConnectionStateRequest  = "CONNECTIONSTATE REQUEST"
	TypeConnectionStateResponse = "CONNECTIONSTATE RESPONSE"
	TypeDisconnectRequest       = "DISCONNECT REQUEST"
	TypeDisconnectResponse      = "DISCONNECT RESPONSE"
	TypeConfigurationRequest    = "CONFIGURATION REQUEST"
	TypeConfigurationAck        = "CONFIGURATION ACK"
	TypeTunnelingRequest        = "TUNNELING REQUEST"
	TypeTunnelingAck            = "TUNNELING ACK"
	TypeRoutingIndication       = "ROUTING INDICATION"
)

// cEMI message codes.
const (
	MessageLDataReq     = 0x11
	MessageLDataInd     = 0x29
	MessageLDataCon     = 0x2e
	MessagePropWriteCon = 0xf5
	MessagePropWriteReq = 0xf6
	MessagePropReadCon  = 0xfb
	MessagePropReadReq  = 0xfc
)

// Connection type codes used in connect requests.
const (
	ConnDeviceManagement = 0x03
	ConnTunnel           = 0x04
)

//go:embed knxnet.yaml
var specYAML []byte

var (
	specOnce sync.Once
	specVal  *spec.Specification
	specErr  error
)

// Spec returns the built-in KNXnet/IP specification. The document is
// parsed once; every caller shares the same instance.
func Spec() (*spec.Specification, error) {
	specOnce.Do(func() {
		specVal, specErr = spec.Parse(specYAML)
	})
	return specVal, specErr
}
