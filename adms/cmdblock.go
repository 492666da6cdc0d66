package adms

import (
	"net/url"
	"strconv"
	"strings"

	"admsserver/models"
)

// ParseCommandBlock parses the CMD block of a devicecmd report: one
// KEY=VALUE per line, keys optionally prefixed with "~". Blank lines and
// lines without "=" are skipped. The value is everything after the first
// "=". Later keys overwrite earlier ones.
func ParseCommandBlock(block string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(strings.ReplaceAll(block, "\r", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "~")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// ParseDeviceCmd parses a devicecmd body. The body is form-encoded pairs,
// but the CMD block may carry raw "&", "=" and newlines, so once CMD= is
// seen every following segment belongs to the block until the next ID= or
// Return= field.
func ParseDeviceCmd(body string) (models.CommandResult, error) {
	res := models.CommandResult{Raw: body}
	var (
		block     []string
		inBlock   bool
		returnRaw string
		hasReturn bool
	)

	for _, part := range strings.Split(strings.TrimSpace(body), "&") {
		key, value, _ := strings.Cut(part, "=")
		switch strings.TrimSpace(key) {
		case "ID":
			res.CommandID = strings.TrimSpace(unescape(value))
			inBlock = false
		case "Return":
			returnRaw, hasReturn = strings.TrimSpace(unescape(value)), true
			inBlock = false
		case "CMD":
			block, inBlock = []string{value}, true
		default:
			if inBlock {
				block = append(block, part)
			}
		}
	}

	res.Fields = ParseCommandBlock(unescape(strings.Join(block, "&")))
	if hasReturn {
		n, err := strconv.Atoi(returnRaw)
		if err != nil {
			return res, NewError(KindValidation, "devicecmd Return", err)
		}
		res.ReturnCode = n
	} else if n, err := strconv.Atoi(res.Fields["Return"]); err == nil {
		res.ReturnCode = n
	}
	if res.CommandID == "" {
		return res, NewError(KindValidation, "devicecmd ID", ErrMissingCommandID)
	}
	return res, nil
}

// unescape decodes form encoding ("+" is a space). Malformed escapes are
// left as they are.
func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// DeviceInfo extracts network identity from a parsed CMD block. ok is false
// when the block carries neither a MAC nor an IP address.
func DeviceInfo(fields map[string]string) (models.DeviceInfoUpdate, bool) {
	info := models.DeviceInfoUpdate{
		MACAddress: firstOf(fields, "MAC", "MACAddress"),
		IPAddress:  firstOf(fields, "IPAddress", "IP"),
		Info:       fields,
	}
	return info, info.MACAddress != "" || info.IPAddress != ""
}

func firstOf(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
