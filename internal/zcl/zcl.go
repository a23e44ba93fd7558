// Package zcl holds the typed cluster, attribute and reporting descriptors the
// device registers with the protocol engine. Descriptors are built at startup
// by the constructor functions in descriptors.go.
package zcl

import "fmt"

// ClusterID identifies a cluster.
type ClusterID uint16

const (
	ClusterBasic       ClusterID = 0x0000
	ClusterPowerConfig ClusterID = 0x0001
	ClusterIdentify    ClusterID = 0x0003
	ClusterOnOff       ClusterID = 0x0006
)

func (c ClusterID) String() string {
	switch c {
	case ClusterBasic:
		return "basic"
	case ClusterPowerConfig:
		return "power_config"
	case ClusterIdentify:
		return "identify"
	case ClusterOnOff:
		return "on_off"
	default:
		return fmt.Sprintf("cluster_0x%04x", uint16(c))
	}
}

// Role is the side of a cluster an endpoint implements.
type Role uint8

const (
	RoleServer Role = 0x01
	RoleClient Role = 0x02
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// AttrID identifies an attribute within a cluster.
type AttrID uint16

// Basic cluster attributes.
const (
	AttrZCLVersion          AttrID = 0x0000
	AttrAppVersion          AttrID = 0x0001
	AttrStackVersion        AttrID = 0x0002
	AttrHWVersion           AttrID = 0x0003
	AttrManufacturerName    AttrID = 0x0004
	AttrModelIdentifier     AttrID = 0x0005
	AttrDateCode            AttrID = 0x0006
	AttrPowerSource         AttrID = 0x0007
	AttrLocationDescription AttrID = 0x0010
	AttrPhysicalEnvironment AttrID = 0x0011
	AttrSWBuildID           AttrID = 0x4000
)

// Identify cluster attributes.
const (
	AttrIdentifyTime AttrID = 0x0000
)

// Power configuration cluster, battery attribute set.
const (
	AttrBatteryVoltage             AttrID = 0x0020
	AttrBatteryPercentageRemaining AttrID = 0x0021
	AttrBatterySize                AttrID = 0x0031
	AttrBatteryQuantity            AttrID = 0x0033
	AttrBatteryRatedVoltage        AttrID = 0x0034
	AttrBatteryAlarmMask           AttrID = 0x0035
	AttrBatteryVoltageMinThreshold AttrID = 0x0036
	AttrBatteryVoltageThreshold1   AttrID = 0x0037
	AttrBatteryVoltageThreshold2   AttrID = 0x0038
	AttrBatteryVoltageThreshold3   AttrID = 0x0039
	AttrBatteryPercentMinThreshold AttrID = 0x003a
	AttrBatteryPercentThreshold1   AttrID = 0x003b
	AttrBatteryPercentThreshold2   AttrID = 0x003c
	AttrBatteryPercentThreshold3   AttrID = 0x003d
	AttrBatteryAlarmState          AttrID = 0x003e
)

// Sentinel attribute values.
const (
	BatteryVoltageInvalid   = 0xff
	BatteryRemainingUnknown = 0xff
	BatterySizeOther        = 0xff
	IdentifyTimeDefault     = 0 // no identify in progress
	PowerSourceBattery      = 0x03
	PhysicalEnvUnspecified  = 0x00
	Version                 = 0x03
)

// OnOffCmd is an On/Off cluster command id.
type OnOffCmd uint8

const (
	CmdOff    OnOffCmd = 0x00
	CmdOn     OnOffCmd = 0x01
	CmdToggle OnOffCmd = 0x02
)

func (c OnOffCmd) String() string {
	switch c {
	case CmdOff:
		return "off"
	case CmdOn:
		return "on"
	case CmdToggle:
		return "toggle"
	default:
		return fmt.Sprintf("cmd_%d", uint8(c))
	}
}

// ProfileHA is the Home Automation profile id.
const ProfileHA uint16 = 0x0104

// DataType is the wire type of an attribute.
type DataType uint8

const (
	TypeBitmap8    DataType = 0x18
	TypeBitmap32   DataType = 0x1b
	TypeU8         DataType = 0x20
	TypeU16        DataType = 0x21
	TypeU32        DataType = 0x23
	TypeEnum8      DataType = 0x30
	TypeCharString DataType = 0x42
)

// Value is an attribute value. Numeric types use Num, strings use Str.
type Value struct {
	Type DataType
	Num  uint32
	Str  string
}

func U8(v uint8) Value         { return Value{Type: TypeU8, Num: uint32(v)} }
func U16(v uint16) Value       { return Value{Type: TypeU16, Num: uint32(v)} }
func Enum8(v uint8) Value      { return Value{Type: TypeEnum8, Num: uint32(v)} }
func Bitmap8(v uint8) Value    { return Value{Type: TypeBitmap8, Num: uint32(v)} }
func Bitmap32(v uint32) Value  { return Value{Type: TypeBitmap32, Num: v} }
func String(s string) Value    { return Value{Type: TypeCharString, Str: s} }
func (v Value) IsString() bool { return v.Type == TypeCharString }

// Diff returns the absolute numeric distance between two values.
func (v Value) Diff(o Value) uint32 {
	if v.Num > o.Num {
		return v.Num - o.Num
	}
	return o.Num - v.Num
}

func (v Value) String() string {
	if v.IsString() {
		return v.Str
	}
	return fmt.Sprintf("%d", v.Num)
}

// Access flags of an attribute.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessReport
)

// AttrDesc describes one attribute and its initial value.
type AttrDesc struct {
	ID      AttrID
	Access  Access
	Default Value
}

// Reportable reports whether a write marks the attribute for reporting.
func (a AttrDesc) Reportable() bool { return a.Access&AccessReport != 0 }

// ClusterDesc is one cluster instance on an endpoint.
type ClusterDesc struct {
	ID    ClusterID
	Role  Role
	Attrs []AttrDesc
}

// EndpointDesc is the simple descriptor plus cluster list of an endpoint.
type EndpointDesc struct {
	ID       uint8
	Profile  uint16
	DeviceID uint16
	Version  uint8
	Clusters []ClusterDesc
}

// InClusters lists the server cluster ids in declaration order.
func (e EndpointDesc) InClusters() []ClusterID { return e.clusters(RoleServer) }

// OutClusters lists the client cluster ids in declaration order.
func (e EndpointDesc) OutClusters() []ClusterID { return e.clusters(RoleClient) }

func (e EndpointDesc) clusters(r Role) []ClusterID {
	var ids []ClusterID
	for _, c := range e.Clusters {
		if c.Role == r {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Address is a short network address plus endpoint.
type Address struct {
	ShortAddr uint16
	Endpoint  uint8
	Profile   uint16
}

// ReportingInfo is the reporting policy of one attribute.
// MaxInterval 0 disables periodic reports; MinInterval still bounds
// change-triggered ones. Intervals are in seconds.
type ReportingInfo struct {
	Endpoint         uint8
	Cluster          ClusterID
	Role             Role
	Attr             AttrID
	Dst              Address
	MinInterval      uint16
	MaxInterval      uint16
	ReportableChange uint32
	ReportedValue    Value
	DefMinInterval   uint16
	DefMaxInterval   uint16
}

// Reporting interval sentinels.
const (
	ReportNoPeriodic uint16 = 0x0000
	ReportDisabled   uint16 = 0xffff
)
