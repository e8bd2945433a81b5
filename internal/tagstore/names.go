package tagstore

// Tag names. The full namespace from spec §6, compiled into constants so
// every reference is caught at build time; the string-keyed Store API
// remains for console/debug use only, per the design notes.
const (
	DIInletValveOpen   = "DI_INLET_VLV_OPEN"
	DIInletValveClosed = "DI_INLET_VLV_CLOSED"
	DIStrainerHiDP     = "DI_STRAINER_HI_DP"
	DIPumpRunning      = "DI_PUMP_RUNNING"
	DIPumpOverload     = "DI_PUMP_OVERLOAD"
	DIDivertSales      = "DI_DIVERT_SALES"
	DIDivertDivert     = "DI_DIVERT_DIVERT"
	DISamplePotHi      = "DI_SAMPLE_POT_HI"
	DISamplePotLo      = "DI_SAMPLE_POT_LO"
	DIProverValveOpen  = "DI_PROVER_VLV_OPEN"
	DIAirElimFloat     = "DI_AIR_ELIM_FLOAT"
	DIOutletValveOpen  = "DI_OUTLET_VLV_OPEN"
	DIEStop            = "DI_ESTOP"

	DOPumpStart      = "DO_PUMP_START"
	DODivertCmd      = "DO_DIVERT_CMD" // 0=SALES, 1=DIVERT
	DOSampleSol      = "DO_SAMPLE_SOL"
	DOSampleMixPump  = "DO_SAMPLE_MIX_PUMP"
	DOProverValveCmd = "DO_PROVER_VLV_CMD"
	DOAlarmBeacon    = "DO_ALARM_BEACON"
	DOAlarmHorn      = "DO_ALARM_HORN"
	DOStatusGreen    = "DO_STATUS_GREEN"

	AIInletPress  = "AI_INLET_PRESS"
	AILoopHiPress = "AI_LOOP_HI_PRESS"
	AIStrainerDP  = "AI_STRAINER_DP"
	AIBSWProbe    = "AI_BSW_PROBE"
	AIMeterTemp   = "AI_METER_TEMP"
	AITestThermo  = "AI_TEST_THERMO"
	AIOutletPress = "AI_OUTLET_PRESS"

	PIMeterPulse = "PI_METER_PULSE"

	AOBPSalesSP  = "AO_BP_SALES_SP"
	AOBPDivertSP = "AO_BP_DIVERT_SP"

	// Virtual tags: software-only accumulators and published values not
	// backed by a physical point, declared by the modules that own them.
	VTGrossBBL       = "VT_GROSS_BBL"
	VTNetBBL         = "VT_NET_BBL"
	VTDivertedBBL    = "VT_DIVERTED_BBL"
	VTBSWEffective   = "VT_BSW_EFFECTIVE"
	VTMeterFactor    = "VT_METER_FACTOR"
	VTSampleGrabs    = "VT_SAMPLE_GRABS"
	VTSampleVolumeML = "VT_SAMPLE_VOLUME_ML"
)

// DivertSales and DivertDivert are the two legal values of DO_DIVERT_CMD.
const (
	DivertSales  = false
	DivertDivert = true
)

// Declared engineering ranges for analog tags (spec §6).
var (
	RangeInletPress  = Range{Lo: 0, Hi: 300}
	RangeLoopHiPress = Range{Lo: 0, Hi: 300}
	RangeStrainerDP  = Range{Lo: 0, Hi: 50}
	RangeBSWProbe    = Range{Lo: 0, Hi: 5}
	RangeMeterTemp   = Range{Lo: -20, Hi: 200}
	RangeTestThermo  = Range{Lo: -20, Hi: 200}
	RangeOutletPress = Range{Lo: 0, Hi: 300}
	RangeBPSetpoint  = Range{Lo: 0, Hi: 150}
)

// DeclareLACT registers the complete spec §6 tag namespace plus the
// virtual accumulator tags owned by the process modules.
func DeclareLACT(s *Store) {
	for _, n := range []string{
		DIInletValveOpen, DIInletValveClosed, DIStrainerHiDP, DIPumpRunning,
		DIPumpOverload, DIDivertSales, DIDivertDivert, DISamplePotHi,
		DISamplePotLo, DIProverValveOpen, DIAirElimFloat, DIOutletValveOpen,
		DIEStop,
	} {
		s.DeclareDiscrete(n, DI, false)
	}
	for _, n := range []string{
		DOPumpStart, DODivertCmd, DOSampleSol, DOSampleMixPump,
		DOProverValveCmd, DOAlarmBeacon, DOAlarmHorn, DOStatusGreen,
	} {
		s.DeclareDiscrete(n, DO, false)
	}
	s.DeclareAnalog(AIInletPress, AI, RangeInletPress, 0)
	s.DeclareAnalog(AILoopHiPress, AI, RangeLoopHiPress, 0)
	s.DeclareAnalog(AIStrainerDP, AI, RangeStrainerDP, 0)
	s.DeclareAnalog(AIBSWProbe, AI, RangeBSWProbe, 0)
	s.DeclareAnalog(AIMeterTemp, AI, RangeMeterTemp, 60)
	s.DeclareAnalog(AITestThermo, AI, RangeTestThermo, 60)
	s.DeclareAnalog(AIOutletPress, AI, RangeOutletPress, 0)
	s.DeclarePulse(PIMeterPulse, 0)
	s.DeclareAnalog(AOBPSalesSP, AO, RangeBPSetpoint, 0)
	s.DeclareAnalog(AOBPDivertSP, AO, RangeBPSetpoint, 0)

	s.DeclareVirtualFloat(VTGrossBBL, 0)
	s.DeclareVirtualFloat(VTNetBBL, 0)
	s.DeclareVirtualFloat(VTDivertedBBL, 0)
	s.DeclareVirtualFloat(VTBSWEffective, 0)
	s.DeclareVirtualFloat(VTMeterFactor, 1.0)
	s.DeclareVirtualFloat(VTSampleGrabs, 0)
	s.DeclareVirtualFloat(VTSampleVolumeML, 0)
}
