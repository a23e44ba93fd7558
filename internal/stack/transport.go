package stack

import (
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// Command is an outgoing cluster command.
type Command struct {
	SrcEndpoint uint8
	Dst         zcl.Address
	Cluster     zcl.ClusterID
	OnOff       zcl.OnOffCmd
}

// Report is an outgoing attribute report.
type Report struct {
	SrcEndpoint uint8
	Dst         zcl.Address
	Cluster     zcl.ClusterID
	Attr        zcl.AttrID
	Value       zcl.Value
}

// LinkHandler receives network events from a Transport. Methods may be called
// from any goroutine and must not block.
type LinkHandler interface {
	LinkUp()
	LinkDown()
	IdentifyRequest(seconds uint16)
}

// Transport carries commands and reports to the network. Start returns once
// the connection attempt is under way; the join is signalled via LinkUp.
type Transport interface {
	Start(h LinkHandler) error
	SendCommand(c Command) error
	SendReport(r Report) error
	Leave() error
	Close() error
}
