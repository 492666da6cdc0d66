// Package adms implements the text framing of the ADMS push protocol spoken
// by attendance terminals: endpoint and serial number validation, reply
// framing, the settings block, command lines, and the parsers for the
// devicecmd result block and uploaded data tables.
package adms

import (
	"errors"
	"regexp"
	"strings"

	"admsserver/models"
)

const (
	EndpointCData      = "cdata"
	EndpointDeviceCmd  = "devicecmd"
	EndpointGetRequest = "getrequest"

	ReplyOK    = "OK"
	ReplyError = "Error Occurred"

	// MaxSNLength is the longest serial number accepted.
	MaxSNLength = 50

	// LineEnd terminates settings lines and every reply body.
	LineEnd = "\r"
	// CommandLineEnd terminates getrequest command lines and their final OK.
	CommandLineEnd = "\r\n"
)

var (
	ErrUnknownEndpoint  = errors.New("unknown endpoint")
	ErrMissingSN        = errors.New("missing SN")
	ErrInvalidSN        = errors.New("invalid SN")
	ErrMissingCommandID = errors.New("missing command ID")
)

var snPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeEndpoint lowercases the endpoint segment, strips a .aspx or .php
// suffix and checks it is one of the three protocol endpoints.
func NormalizeEndpoint(raw string) (string, error) {
	ep := strings.ToLower(strings.TrimSpace(raw))
	ep = strings.TrimSuffix(ep, ".aspx")
	ep = strings.TrimSuffix(ep, ".php")
	switch ep {
	case EndpointCData, EndpointDeviceCmd, EndpointGetRequest:
		return ep, nil
	}
	return "", NewError(KindProtocol, "endpoint "+raw, ErrUnknownEndpoint)
}

// ValidateSN checks a terminal serial number.
func ValidateSN(sn string) error {
	if sn == "" {
		return NewError(KindValidation, "SN", ErrMissingSN)
	}
	if len(sn) > MaxSNLength || !snPattern.MatchString(sn) {
		return NewError(KindValidation, "SN", ErrInvalidSN)
	}
	return nil
}

// Frame trims body and terminates it with a single line end.
func Frame(body string) []byte {
	return []byte(strings.TrimSpace(body) + LineEnd)
}

// settingOrder is the fixed order of the cdata settings block with the
// value used when a device has no setting of its own.
var settingOrder = []struct {
	key      string
	fallback string
}{
	{"ATTLOGStamp", "0"},
	{"OPERLOGStamp", "0"},
	{"ATTPHOTOStamp", "0"},
	{"BIODATAStamp", "0"},
	{"ErrorDelay", "60"},
	{"Delay", "30"},
	{"TransTimes", "00:00;14:05"},
	{"TransInterval", "1"},
	{"TransFlag", "1111000000"},
	{"TimeZone", "0"},
	{"Realtime", "1"},
	{"Encrypt", "0"},
}

// SettingsBlock renders the cdata GET reply.
func SettingsBlock(sn string, settings models.DeviceSettings) string {
	var b strings.Builder
	b.WriteString("GET OPTION FROM: ")
	b.WriteString(sn)
	b.WriteString(LineEnd)
	for _, s := range settingOrder {
		b.WriteString(s.key)
		b.WriteString("=")
		b.WriteString(settings.Get(s.key, s.fallback))
		b.WriteString(LineEnd)
	}
	b.WriteString(LineEnd)
	b.WriteString(ReplyOK)
	return b.String()
}

// CommandLine renders one getrequest line without its line end.
func CommandLine(cmd models.Command) string {
	line := "C:" + cmd.ID + ":" + cmd.Command
	if cmd.Params.Len() > 0 {
		line += " " + cmd.Params.Wire()
	}
	return line
}

// CommandList renders the complete getrequest reply: one line per command
// and a final OK, each ended by CommandLineEnd. It is already framed.
func CommandList(cmds []models.Command) []byte {
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(CommandLine(c))
		b.WriteString(CommandLineEnd)
	}
	b.WriteString(ReplyOK)
	b.WriteString(CommandLineEnd)
	return []byte(b.String())
}
