package payload

// DecodeStatus decodes a 0x13 status body: terminal-info byte (alarm
// and carrier bits), voltage level (0-6), GSM signal level (0-4), and a
// trailing alarm/language word that this parser does not interpret
// further — spec §4.2 scopes status decode to battery/signal/alarm.
func DecodeStatus(body []byte) (*Status, error) {
	if len(body) < 1 {
		return nil, unparsable(OpStatus, "empty status body")
	}

	terminalInfo := body[0]
	var voltage, signal byte
	if len(body) > 1 {
		voltage = body[1]
	}
	if len(body) > 2 {
		signal = body[2]
	}

	return &Status{
		Raw:        terminalInfo,
		BatteryPct: voltageLevelToPct(voltage),
		SignalPct:  signalLevelToPct(signal),
		AlarmBits:  terminalInfo,
	}, nil
}

// voltageLevelToPct maps the GT06 0-6 discrete voltage level to a
// rough percentage; devices do not report a finer-grained value.
func voltageLevelToPct(level byte) uint8 {
	if level > 6 {
		level = 6
	}
	return uint8(int(level) * 100 / 6)
}

// signalLevelToPct maps the GT06 0-4 discrete GSM signal level to a
// rough percentage.
func signalLevelToPct(level byte) uint8 {
	if level > 4 {
		level = 4
	}
	return uint8(int(level) * 100 / 4)
}
