package protocol

import "strconv"

// Command is the message class carried in the fourth topic segment.
type Command uint8

// MySensors commands.
const (
	CommandPresentation Command = 0
	CommandSet          Command = 1
	CommandReq          Command = 2
	CommandInternal     Command = 3
	CommandStream       Command = 4
)

var commandNames = [...]string{"C_PRESENTATION", "C_SET", "C_REQ", "C_INTERNAL", "C_STREAM"}

// Valid reports whether c is a known command.
func (c Command) Valid() bool { return int(c) < len(commandNames) }

func (c Command) String() string {
	if c.Valid() {
		return commandNames[c]
	}
	return "C_" + strconv.Itoa(int(c))
}

// SensorType is the message type of a presentation.
type SensorType uint8

// Sensor types used by the gateway itself. The full range is listed in
// sensorNames.
const (
	SensorDoor                SensorType = 0
	SensorMotion              SensorType = 1
	SensorBinary              SensorType = 3
	SensorTemp                SensorType = 6
	SensorHum                 SensorType = 7
	SensorArduinoNode         SensorType = 17
	SensorArduinoRepeaterNode SensorType = 18
	SensorCustom              SensorType = 23
	SensorInfo                SensorType = 36
	SensorWaterQuality        SensorType = 39
)

var sensorNames = [...]string{
	"S_DOOR", "S_MOTION", "S_SMOKE", "S_BINARY", "S_DIMMER", "S_COVER", "S_TEMP", "S_HUM", "S_BARO", "S_WIND",
	"S_RAIN", "S_UV", "S_WEIGHT", "S_POWER", "S_HEATER", "S_DISTANCE", "S_LIGHT_LEVEL", "S_ARDUINO_NODE", "S_ARDUINO_REPEATER_NODE", "S_LOCK",
	"S_IR", "S_WATER", "S_AIR_QUALITY", "S_CUSTOM", "S_DUST", "S_SCENE_CONTROLLER", "S_RGB_LIGHT", "S_RGBW_LIGHT", "S_COLOR_SENSOR", "S_HVAC",
	"S_MULTIMETER", "S_SPRINKLER", "S_WATER_LEAK", "S_SOUND", "S_VIBRATION", "S_MOISTURE", "S_INFO", "S_GAS", "S_GPS", "S_WATER_QUALITY",
}

func (t SensorType) String() string { return enumName(sensorNames[:], "S_", uint8(t)) }

// VariableType is the message type of set and req messages.
type VariableType uint8

// Variable types referenced by name in this module.
const (
	VarTemp         VariableType = 0
	VarHum          VariableType = 1
	VarStatus       VariableType = 2
	VarPercentage   VariableType = 3
	VarTripped      VariableType = 16
	VarLightLevel   VariableType = 23
	VarVoltage      VariableType = 38
	VarText         VariableType = 47
	VarCustom       VariableType = 48
	VarMultiMessage VariableType = 57
)

var variableNames = [...]string{
	"V_TEMP", "V_HUM", "V_STATUS", "V_PERCENTAGE", "V_PRESSURE", "V_FORECAST", "V_RAIN", "V_RAINRATE", "V_WIND", "V_GUST",
	"V_DIRECTION", "V_UV", "V_WEIGHT", "V_DISTANCE", "V_IMPEDANCE", "V_ARMED", "V_TRIPPED", "V_WATT", "V_KWH", "V_SCENE_ON",
	"V_SCENE_OFF", "V_HVAC_FLOW_STATE", "V_HVAC_SPEED", "V_LIGHT_LEVEL", "V_VAR1", "V_VAR2", "V_VAR3", "V_VAR4", "V_VAR5", "V_UP",
	"V_DOWN", "V_STOP", "V_IR_SEND", "V_IR_RECEIVE", "V_FLOW", "V_VOLUME", "V_LOCK_STATUS", "V_LEVEL", "V_VOLTAGE", "V_CURRENT",
	"V_RGB", "V_RGBW", "V_ID", "V_UNIT_PREFIX", "V_HVAC_SETPOINT_COOL", "V_HVAC_SETPOINT_HEAT", "V_HVAC_FLOW_MODE", "V_TEXT", "V_CUSTOM", "V_POSITION",
	"V_IR_RECORD", "V_PH", "V_ORP", "V_EC", "V_VAR", "V_VA", "V_POWER_FACTOR", "V_MULTI_MESSAGE",
}

func (t VariableType) String() string { return enumName(variableNames[:], "V_", uint8(t)) }

// InternalType is the message type of internal messages.
type InternalType uint8

// Internal message types.
const (
	InternalBatteryLevel          InternalType = 0
	InternalTime                  InternalType = 1
	InternalVersion               InternalType = 2
	InternalIDRequest             InternalType = 3
	InternalIDResponse            InternalType = 4
	InternalInclusionMode         InternalType = 5
	InternalConfig                InternalType = 6
	InternalFindParentRequest     InternalType = 7
	InternalFindParentResponse    InternalType = 8
	InternalLogMessage            InternalType = 9
	InternalChildren              InternalType = 10
	InternalSketchName            InternalType = 11
	InternalSketchVersion         InternalType = 12
	InternalReboot                InternalType = 13
	InternalGatewayReady          InternalType = 14
	InternalSigningPresentation   InternalType = 15
	InternalNonceRequest          InternalType = 16
	InternalNonceResponse         InternalType = 17
	InternalHeartbeatRequest      InternalType = 18
	InternalPresentation          InternalType = 19
	InternalDiscoverRequest       InternalType = 20
	InternalDiscoverResponse      InternalType = 21
	InternalHeartbeatResponse     InternalType = 22
	InternalLocked                InternalType = 23
	InternalPing                  InternalType = 24
	InternalPong                  InternalType = 25
	InternalRegistrationRequest   InternalType = 26
	InternalRegistrationResponse  InternalType = 27
	InternalDebug                 InternalType = 28
	InternalSignalReportRequest   InternalType = 29
	InternalSignalReportReverse   InternalType = 30
	InternalSignalReportResponse  InternalType = 31
	InternalPreSleepNotification  InternalType = 32
	InternalPostSleepNotification InternalType = 33
)

var internalNames = [...]string{
	"I_BATTERY_LEVEL", "I_TIME", "I_VERSION", "I_ID_REQUEST", "I_ID_RESPONSE", "I_INCLUSION_MODE", "I_CONFIG", "I_FIND_PARENT_REQUEST", "I_FIND_PARENT_RESPONSE", "I_LOG_MESSAGE",
	"I_CHILDREN", "I_SKETCH_NAME", "I_SKETCH_VERSION", "I_REBOOT", "I_GATEWAY_READY", "I_SIGNING_PRESENTATION", "I_NONCE_REQUEST", "I_NONCE_RESPONSE", "I_HEARTBEAT_REQUEST", "I_PRESENTATION",
	"I_DISCOVER_REQUEST", "I_DISCOVER_RESPONSE", "I_HEARTBEAT_RESPONSE", "I_LOCKED", "I_PING", "I_PONG", "I_REGISTRATION_REQUEST", "I_REGISTRATION_RESPONSE", "I_DEBUG", "I_SIGNAL_REPORT_REQUEST",
	"I_SIGNAL_REPORT_REVERSE", "I_SIGNAL_REPORT_RESPONSE", "I_PRE_SLEEP_NOTIFICATION", "I_POST_SLEEP_NOTIFICATION",
}

func (t InternalType) String() string { return enumName(internalNames[:], "I_", uint8(t)) }

// StreamType is the message type of stream messages.
type StreamType uint8

// Stream message types.
const (
	StreamFirmwareConfigRequest  StreamType = 0
	StreamFirmwareConfigResponse StreamType = 1
	StreamFirmwareRequest        StreamType = 2
	StreamFirmwareResponse       StreamType = 3
	StreamSound                  StreamType = 4
	StreamImage                  StreamType = 5
	StreamFirmwareConfirm        StreamType = 6
	StreamFirmwareResponseRLE    StreamType = 7
)

var streamNames = [...]string{
	"ST_FIRMWARE_CONFIG_REQUEST", "ST_FIRMWARE_CONFIG_RESPONSE", "ST_FIRMWARE_REQUEST", "ST_FIRMWARE_RESPONSE",
	"ST_SOUND", "ST_IMAGE", "ST_FIRMWARE_CONFIRM", "ST_FIRMWARE_RESPONSE_RLE",
}

func (t StreamType) String() string { return enumName(streamNames[:], "ST_", uint8(t)) }

// typeCount is the number of known message types for each command.
func typeCount(c Command) int {
	switch c {
	case CommandPresentation:
		return len(sensorNames)
	case CommandSet, CommandReq:
		return len(variableNames)
	case CommandInternal:
		return len(internalNames)
	case CommandStream:
		return len(streamNames)
	default:
		return 0
	}
}

// ValidType reports whether typ is a known message type for command c.
func ValidType(c Command, typ uint8) bool {
	return int(typ) < typeCount(c)
}

// TypeName returns the constant name of typ interpreted under command c,
// e.g. "V_TEMP" for a set message of type 0.
func TypeName(c Command, typ uint8) string {
	switch c {
	case CommandPresentation:
		return SensorType(typ).String()
	case CommandSet, CommandReq:
		return VariableType(typ).String()
	case CommandInternal:
		return InternalType(typ).String()
	case CommandStream:
		return StreamType(typ).String()
	default:
		return strconv.Itoa(int(typ))
	}
}

func enumName(names []string, prefix string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return prefix + strconv.Itoa(int(v))
}

// ParseSensorType looks up a sensor type by its constant name, e.g.
// "S_TEMP".
func ParseSensorType(name string) (SensorType, bool) {
	for i, n := range sensorNames {
		if n == name {
			return SensorType(i), true
		}
	}
	return 0, false
}
