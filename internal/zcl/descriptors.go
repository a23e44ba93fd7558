package zcl

// BasicAttrs are the initial Basic cluster values.
type BasicAttrs struct {
	AppVersion   uint8
	StackVersion uint8
	HWVersion    uint8
	Manufacturer string // at most 32 bytes
	Model        string // at most 32 bytes
	DateCode     string // YYYYMMDD
	PowerSource  uint8
	Location     string // at most 16 bytes
	PhysicalEnv  uint8
	SWBuildID    string
}

// BatteryAttrs are the initial Power Configuration battery values.
// Voltages are in 100 mV units, percentages in half-percent units.
type BatteryAttrs struct {
	Size                uint8
	Quantity            uint8
	RatedVoltage        uint8
	AlarmMask           uint8
	VoltageMinThreshold uint8
	VoltageThresholds   [3]uint8
	PercentMinThreshold uint8
	PercentThresholds   [3]uint8
}

const ro = AccessRead

// BasicServer builds the Basic cluster (server role).
func BasicServer(b BasicAttrs) ClusterDesc {
	return ClusterDesc{
		ID:   ClusterBasic,
		Role: RoleServer,
		Attrs: []AttrDesc{
			{ID: AttrZCLVersion, Access: ro, Default: U8(Version)},
			{ID: AttrAppVersion, Access: ro, Default: U8(b.AppVersion)},
			{ID: AttrStackVersion, Access: ro, Default: U8(b.StackVersion)},
			{ID: AttrHWVersion, Access: ro, Default: U8(b.HWVersion)},
			{ID: AttrManufacturerName, Access: ro, Default: String(truncate(b.Manufacturer, 32))},
			{ID: AttrModelIdentifier, Access: ro, Default: String(truncate(b.Model, 32))},
			{ID: AttrDateCode, Access: ro, Default: String(truncate(b.DateCode, 16))},
			{ID: AttrPowerSource, Access: ro, Default: Enum8(b.PowerSource)},
			{ID: AttrLocationDescription, Access: ro | AccessWrite, Default: String(truncate(b.Location, 16))},
			{ID: AttrPhysicalEnvironment, Access: ro | AccessWrite, Default: Enum8(b.PhysicalEnv)},
			{ID: AttrSWBuildID, Access: ro, Default: String(truncate(b.SWBuildID, 16))},
		},
	}
}

// IdentifyServer builds the Identify cluster (server role).
func IdentifyServer() ClusterDesc {
	return ClusterDesc{
		ID:   ClusterIdentify,
		Role: RoleServer,
		Attrs: []AttrDesc{
			{ID: AttrIdentifyTime, Access: ro | AccessWrite, Default: U16(IdentifyTimeDefault)},
		},
	}
}

// IdentifyClient builds the Identify cluster (client role). It has no attributes.
func IdentifyClient() ClusterDesc {
	return ClusterDesc{ID: ClusterIdentify, Role: RoleClient}
}

// OnOffClient builds the On/Off cluster (client role). It has no attributes.
func OnOffClient() ClusterDesc {
	return ClusterDesc{ID: ClusterOnOff, Role: RoleClient}
}

// PowerConfigServer builds the Power Configuration cluster with the battery
// attribute set. Battery voltage is not reportable by the cluster definition;
// percentage remaining and alarm state are.
func PowerConfigServer(p BatteryAttrs) ClusterDesc {
	rw := ro | AccessWrite
	return ClusterDesc{
		ID:   ClusterPowerConfig,
		Role: RoleServer,
		Attrs: []AttrDesc{
			{ID: AttrBatteryVoltage, Access: ro, Default: U8(BatteryVoltageInvalid)},
			{ID: AttrBatteryPercentageRemaining, Access: ro | AccessReport, Default: U8(BatteryRemainingUnknown)},
			{ID: AttrBatterySize, Access: rw, Default: Enum8(p.Size)},
			{ID: AttrBatteryQuantity, Access: rw, Default: U8(p.Quantity)},
			{ID: AttrBatteryRatedVoltage, Access: rw, Default: U8(p.RatedVoltage)},
			{ID: AttrBatteryAlarmMask, Access: rw, Default: Bitmap8(p.AlarmMask)},
			{ID: AttrBatteryVoltageMinThreshold, Access: rw, Default: U8(p.VoltageMinThreshold)},
			{ID: AttrBatteryVoltageThreshold1, Access: rw, Default: U8(p.VoltageThresholds[0])},
			{ID: AttrBatteryVoltageThreshold2, Access: rw, Default: U8(p.VoltageThresholds[1])},
			{ID: AttrBatteryVoltageThreshold3, Access: rw, Default: U8(p.VoltageThresholds[2])},
			{ID: AttrBatteryPercentMinThreshold, Access: rw, Default: U8(p.PercentMinThreshold)},
			{ID: AttrBatteryPercentThreshold1, Access: rw, Default: U8(p.PercentThresholds[0])},
			{ID: AttrBatteryPercentThreshold2, Access: rw, Default: U8(p.PercentThresholds[1])},
			{ID: AttrBatteryPercentThreshold3, Access: rw, Default: U8(p.PercentThresholds[2])},
			{ID: AttrBatteryAlarmState, Access: ro | AccessReport, Default: Bitmap32(0)},
		},
	}
}

// Endpoint assembles an HA profile endpoint from its clusters.
func Endpoint(id uint8, deviceID uint16, version uint8, clusters ...ClusterDesc) EndpointDesc {
	return EndpointDesc{
		ID:       id,
		Profile:  ProfileHA,
		DeviceID: deviceID,
		Version:  version,
		Clusters: clusters,
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
