package adms

import (
	"strings"

	"admsserver/models"
	"admsserver/utils"
)

// Upload tables a terminal posts to cdata.
const (
	TableAttLog   = "ATTLOG"
	TableOperLog  = "OPERLOG"
	TableBioData  = "BIODATA"
	TableAttPhoto = "ATTPHOTO"
)

// StampSetting returns the settings key that records the last upload stamp
// of table, or "" for tables without one.
func StampSetting(table string) string {
	switch strings.ToUpper(table) {
	case TableAttLog:
		return "ATTLOGStamp"
	case TableOperLog:
		return "OPERLOGStamp"
	case TableBioData:
		return "BIODATAStamp"
	case TableAttPhoto:
		return "ATTPHOTOStamp"
	}
	return ""
}

// Upload is the parsed content of one cdata POST.
type Upload struct {
	Attendance []models.AttendanceLog
	Users      []models.DeviceUser
	Templates  []models.BiometricTemplate
	Operations int
	Skipped    int
}

// Records returns the number of records that will be stored.
func (u Upload) Records() int {
	return len(u.Attendance) + len(u.Users) + len(u.Templates)
}

func lines(body string) []string {
	raw := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	out := raw[:0]
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, "\r"))
		}
	}
	return out
}

// ParseUpload parses a cdata body for table. Unknown tables yield an empty
// upload with every line skipped.
func ParseUpload(sn, table, body string) Upload {
	switch strings.ToUpper(table) {
	case TableAttLog:
		return parseAttLog(sn, body)
	case TableOperLog, TableBioData:
		return parseTagged(sn, body)
	}
	return Upload{Skipped: len(lines(body))}
}

// parseAttLog reads "PIN\tTime\tStatus\tVerify\tWorkCode..." lines.
func parseAttLog(sn, body string) Upload {
	var up Upload
	for _, line := range lines(body) {
		f := strings.Split(line, "\t")
		if len(f) < 2 {
			up.Skipped++
			continue
		}
		pin := strings.TrimSpace(f[0])
		punch, err := utils.ParseDeviceTime(strings.TrimSpace(f[1]))
		if pin == "" || err != nil {
			up.Skipped++
			continue
		}
		up.Attendance = append(up.Attendance, models.AttendanceLog{
			DeviceSN:     sn,
			EmployeeCode: pin,
			PunchTime:    punch,
			Status:       field(f, 2),
			VerifyType:   field(f, 3),
			WorkCode:     field(f, 4),
		})
	}
	return up
}

func field(f []string, i int) string {
	if i < len(f) {
		return strings.TrimSpace(f[i])
	}
	return ""
}

// parseTagged reads OPERLOG and BIODATA lines: a tag, a space, then
// tab-separated KEY=VALUE pairs.
func parseTagged(sn, body string) Upload {
	var up Upload
	for _, line := range lines(body) {
		tag, rest, _ := strings.Cut(strings.TrimLeft(line, " "), " ")
		kv := pairs(rest)
		switch strings.ToUpper(tag) {
		case "USER":
			pin := kv["PIN"]
			if pin == "" {
				up.Skipped++
				continue
			}
			up.Users = append(up.Users, models.DeviceUser{
				DeviceSN:   sn,
				PIN:        pin,
				Name:       kv["Name"],
				Privilege:  kv["Pri"],
				Password:   kv["Passwd"],
				Card:       kv["Card"],
				GroupNo:    kv["Grp"],
				TimeZones:  kv["TZ"],
				VerifyMode: kv["Verify"],
			})
		case "FP":
			pin, tmp := kv["PIN"], kv["TMP"]
			if pin == "" || tmp == "" {
				up.Skipped++
				continue
			}
			up.Templates = append(up.Templates, models.BiometricTemplate{
				DeviceSN:     sn,
				PIN:          pin,
				FingerIndex:  defaultString(kv["FID"], "0"),
				TemplateType: "fp",
				Size:         kv["Size"],
				Valid:        kv["Valid"],
				Template:     tmp,
			})
		case "BIODATA":
			pin, tmp := firstOf(kv, "Pin", "PIN"), kv["Tmp"]
			if pin == "" || tmp == "" {
				up.Skipped++
				continue
			}
			up.Templates = append(up.Templates, models.BiometricTemplate{
				DeviceSN:     sn,
				PIN:          pin,
				FingerIndex:  defaultString(kv["Index"], "0"),
				TemplateType: "bio" + defaultString(kv["Type"], "0"),
				Size:         kv["Size"],
				Valid:        kv["Valid"],
				Template:     tmp,
			})
		case "OPLOG":
			up.Operations++
		default:
			up.Skipped++
		}
	}
	return up
}

func pairs(s string) map[string]string {
	out := make(map[string]string)
	for _, p := range strings.Split(s, "\t") {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = v
	}
	return out
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
