package encryption

import (
	"database/sql/driver"

	"modernc.org/sqlite"

	"admsserver/logger"
)

// SQLite has no AES built in, so decrypt expressions compiled for the sqlite
// dialect call these functions. Registration must precede opening any
// connection, hence init.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("adms_decrypt", 2, sqliteDecrypt(DecryptRandomIV))
	sqlite.MustRegisterDeterministicScalarFunction("adms_decrypt_legacy", 2, sqliteDecrypt(DecryptLegacy))
}

func sqliteDecrypt(open func(key, data []byte) (string, error)) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		data := asBytes(args[0])
		key := asBytes(args[1])
		if data == nil || key == nil {
			return nil, nil
		}
		plain, err := open(key, data)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"error": err.Error(),
				"size":  len(data),
			}).Warn("Field decryption failed")
			return nil, nil
		}
		return plain, nil
	}
}

func asBytes(v driver.Value) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}
