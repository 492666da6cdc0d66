package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Command 단말기에 전달할 명령. 중앙 디렉터리와 테넌트 DB에 각각 저장된다.
type Command struct {
	ID           string        `json:"id" db:"id"`
	TenantID     int64         `json:"tenant_id" db:"tenant_id"`
	DeviceID     string        `json:"device_id" db:"device_id"`
	SerialNumber string        `json:"serial_number" db:"serial_number"`
	Name         string        `json:"name" db:"name"`
	Command      string        `json:"command" db:"command"`
	Params       CommandParams `json:"params" db:"params"`
	Status       string        `json:"status" db:"status"`
	Response     string        `json:"response,omitempty" db:"response"`
	ReturnCode   *int          `json:"return_code,omitempty" db:"return_code"`
	CreatedAt    string        `json:"created_at" db:"created_at"`
	UpdatedAt    string        `json:"updated_at" db:"updated_at"`
	SentAt       string        `json:"sent_at,omitempty" db:"sent_at"`
	ExecutedAt   string        `json:"executed_at,omitempty" db:"executed_at"`
	ExpiresAt    string        `json:"expires_at,omitempty" db:"expires_at"`
}

// CommandStatus 상태 상수
const (
	CommandStatusPending  = "PENDING"
	CommandStatusSent     = "SENT"
	CommandStatusExecuted = "EXECUTED"
	CommandStatusFailed   = "FAILED"
)

// CommandStatusRank 상태 진행 순서. 값이 작은 상태로는 되돌아가지 않는다.
func CommandStatusRank(status string) int {
	switch status {
	case CommandStatusPending:
		return 0
	case CommandStatusSent:
		return 1
	case CommandStatusExecuted, CommandStatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminalCommandStatus EXECUTED/FAILED 여부
func IsTerminalCommandStatus(status string) bool {
	return CommandStatusRank(status) == 2
}

// CommandResult devicecmd 콜백으로 보고된 실행 결과
type CommandResult struct {
	CommandID  string
	ReturnCode int
	Fields     map[string]string
	Raw        string
}

// ParamPair 명령 파라미터 한 쌍
type ParamPair struct {
	Key   string
	Value string
}

// CommandParams 입력 순서를 보존하는 명령 파라미터.
// JSON 객체이면 key=value 쌍, 배열이면 값 목록으로 취급한다.
type CommandParams struct {
	Pairs  []ParamPair
	Values []string
	IsList bool
}

// NewParams key, value 순서의 인자로 파라미터를 만든다
func NewParams(kv ...string) CommandParams {
	var p CommandParams
	for i := 0; i+1 < len(kv); i += 2 {
		p.Pairs = append(p.Pairs, ParamPair{Key: kv[i], Value: kv[i+1]})
	}
	return p
}

// NewListParams 값 목록 파라미터를 만든다
func NewListParams(values ...string) CommandParams {
	return CommandParams{Values: values, IsList: true}
}

// Len 파라미터 개수
func (p CommandParams) Len() int {
	if p.IsList {
		return len(p.Values)
	}
	return len(p.Pairs)
}

// Get 키에 해당하는 값을 찾는다
func (p CommandParams) Get(key string) (string, bool) {
	for _, pair := range p.Pairs {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// Keys 키 목록 (입력 순서)
func (p CommandParams) Keys() []string {
	keys := make([]string, len(p.Pairs))
	for i, pair := range p.Pairs {
		keys[i] = pair.Key
	}
	return keys
}

// Wire 단말기 전송 형식: 탭으로 구분된 key=value, 목록이면 값만 나열
func (p CommandParams) Wire() string {
	if p.IsList {
		return strings.Join(p.Values, "\t")
	}
	parts := make([]string, len(p.Pairs))
	for i, pair := range p.Pairs {
		parts[i] = pair.Key + "=" + pair.Value
	}
	return strings.Join(parts, "\t")
}

// MarshalJSON 입력 순서를 유지한 객체 또는 배열로 직렬화한다
func (p CommandParams) MarshalJSON() ([]byte, error) {
	if p.IsList {
		values := p.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(values)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range p.Pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 객체의 키 순서를 보존하며 값은 문자열로 변환한다
func (p *CommandParams) UnmarshalJSON(data []byte) error {
	*p = CommandParams{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("command params must be an object or array")
	}

	switch delim {
	case '[':
		p.IsList = true
		p.Values = []string{}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			v, err := scalarString(raw)
			if err != nil {
				return err
			}
			p.Values = append(p.Values, v)
		}
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("command params: invalid key")
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			v, err := scalarString(raw)
			if err != nil {
				return fmt.Errorf("command params %q: %w", key, err)
			}
			p.Pairs = append(p.Pairs, ParamPair{Key: key, Value: v})
		}
	default:
		return fmt.Errorf("command params must be an object or array")
	}
	_, err = dec.Token()
	return err
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", fmt.Errorf("nested values are not supported")
	default:
		return string(raw), nil
	}
}
