package scrape

import "regexp"

// Status page field keys.
const (
	RxPower       = "rx_power"
	TxPower       = "tx_power"
	LoidState     = "loid_state"
	SupplyVoltage = "supply_voltage"
	BiasCurrent   = "bias_current"
	Temp          = "temp"
)

// Alarm page field keys.
const (
	PonSymPerAlarm = "PonSymPerAlarm"
	PonFrameAlarm  = "PonFrameAlarm"
	PonFraPerAlarm = "PonFraPerAlarm"
	PonSecSumAlarm = "PonSecSumAlarm"
	PonDygaspAlarm = "PonDygaspAlarm"
	PonLinkAlarm   = "PonLinkAlarm"
	PonCirEveAlarm = "PonCirEveAlarm"
)

// UnknownLoidState is published for registration codes outside LoidStates.
const UnknownLoidState = "Unknown"

// LoidStates maps the LOID registration code shown by the status page.
var LoidStates = map[string]string{
	"0": "Init State",
	"1": "Authentication Success",
	"2": "LOID is Wrong",
	"3": "LOID OK, but password is wrong.",
	"4": "LOID conflict",
	"5": "Registration completed",
}

// Raw optical power / 10000 is dBm. Voltage is in µV, bias current in µA.
var statusFields = []Field{
	{
		Key:       RxPower,
		Pattern:   regexp.MustCompile(`var RxPower = "(.*?)";`),
		Transform: Scaled(10000, 2),
		Default:   Float(0),
	},
	{
		Key:       TxPower,
		Pattern:   regexp.MustCompile(`var TxPower = "(.*?)";`),
		Transform: Scaled(10000, 2),
		Default:   Float(0),
	},
	{
		Key:       LoidState,
		Pattern:   regexp.MustCompile(`Transfer_meaning\('LoidState','(.*?)'\);`),
		Transform: Lookup(LoidStates, UnknownLoidState),
		Default:   Text(""),
	},
	{
		Key:       SupplyVoltage,
		Pattern:   regexp.MustCompile(`<td id="Frm_Volt" name="Frm_Volt" class="tdright">(.*?)</td>`),
		Transform: Scaled(1000000, 4),
		Default:   Float(0),
	},
	{
		Key:       BiasCurrent,
		Pattern:   regexp.MustCompile(`<td id="Frm_Current" name="Frm_Current"\s*class="tdright">(.*?)</td>`),
		Transform: Scaled(1000, 4),
		Default:   Float(0),
	},
	{
		Key:       Temp,
		Pattern:   regexp.MustCompile(`<td id="Frm_Temp" name="Frm_Temp" class="tdright">(.*?)</td>`),
		Transform: Integer,
		Default:   Float(0),
	},
}

func alarmCell(id string) *regexp.Regexp {
	return regexp.MustCompile(`<td id="` + id + `" name="` + id + `" class="tdright">(.*?)</td>`)
}

// PonDygaspAlarm and PonLinkAlarm read each other's cell, and
// PonCirEveAlarm reads the Frm_Link cell too. Do not remap without
// checking a live alarm page.
var alarmFields = []Field{
	{Key: PonSymPerAlarm, Pattern: alarmCell("Frm_System"), Transform: Verbatim, Default: Text("")},
	{Key: PonFrameAlarm, Pattern: alarmCell("Frm_Frame"), Transform: Verbatim, Default: Text("")},
	{Key: PonFraPerAlarm, Pattern: alarmCell("Frm_FraPer"), Transform: Verbatim, Default: Text("")},
	{Key: PonSecSumAlarm, Pattern: alarmCell("Frm_SecSu"), Transform: Verbatim, Default: Text("")},
	{Key: PonDygaspAlarm, Pattern: alarmCell("Frm_Link"), Transform: Verbatim, Default: Text("")},
	{Key: PonLinkAlarm, Pattern: alarmCell("Frm_Dygasp"), Transform: Verbatim, Default: Text("")},
	{Key: PonCirEveAlarm, Pattern: alarmCell("Frm_Link"), Transform: Verbatim, Default: Text("")},
}

// StatusFields returns the catalog for the PON link status page.
func StatusFields() []Field {
	return append([]Field(nil), statusFields...)
}

// AlarmFields returns the catalog for the PON alarm page.
func AlarmFields() []Field {
	return append([]Field(nil), alarmFields...)
}
