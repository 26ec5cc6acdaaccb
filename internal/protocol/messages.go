package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/jackc/pgproto3/v2"
)

// Type OIDs from pg_type.
const (
	oidBool   uint32 = 16
	oidInt8   uint32 = 20
	oidText   uint32 = 25
	oidFloat8 uint32 = 701
)

func resultMessages(res *executor.Result) []pgproto3.BackendMessage {
	var msgs []pgproto3.BackendMessage
	if len(res.Columns) > 0 {
		fields := make([]pgproto3.FieldDescription, len(res.Columns))
		for i, name := range res.Columns {
			fields[i] = pgproto3.FieldDescription{
				Name:         []byte(name),
				DataTypeOID:  columnType(res.Rows, i),
				DataTypeSize: -1,
				TypeModifier: -1,
				Format:       0,
			}
		}
		msgs = append(msgs, &pgproto3.RowDescription{Fields: fields})
		for _, row := range res.Rows {
			values := make([][]byte, len(row))
			for i, v := range row {
				values[i] = encodeText(v)
			}
			msgs = append(msgs, &pgproto3.DataRow{Values: values})
		}
	}
	return append(msgs, &pgproto3.CommandComplete{CommandTag: []byte(res.Message)})
}

// columnType picks int8, float8 or bool when every non-null value of the
// column has that kind, and text otherwise.
func columnType(rows [][]any, col int) uint32 {
	var oid uint32
	for _, row := range rows {
		v := row[col]
		if v == nil {
			continue
		}
		t := valueType(v)
		switch {
		case oid == 0:
			oid = t
		case oid == t:
		case oid == oidInt8 && t == oidFloat8, oid == oidFloat8 && t == oidInt8:
			oid = oidFloat8
		default:
			return oidText
		}
	}
	if oid == 0 {
		return oidText
	}
	return oid
}

func valueType(v any) uint32 {
	switch x := v.(type) {
	case bool:
		return oidBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return oidInt8
	case float32, float64:
		return oidFloat8
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return oidInt8
		}
		return oidFloat8
	default:
		return oidText
	}
}

// encodeText renders v in the text format. nil is SQL NULL.
func encodeText(v any) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(x)
	case []byte:
		return x
	case bool:
		if x {
			return []byte("t")
		}
		return []byte("f")
	case float64:
		return strconv.AppendFloat(nil, x, 'g', -1, 64)
	case float32:
		return strconv.AppendFloat(nil, float64(x), 'g', -1, 32)
	case json.Number:
		return []byte(x.String())
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return []byte(fmt.Sprint(x))
		}
		return data
	default:
		return []byte(fmt.Sprint(x))
	}
}

// errorResponse maps statement errors to SQLSTATE codes.
func errorResponse(err error) *pgproto3.ErrorResponse {
	return &pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     sqlState(err),
		Message:  err.Error(),
	}
}

func sqlState(err error) string {
	switch {
	case errors.Is(err, executor.ErrSyntax):
		return "42601"
	case errors.Is(err, executor.ErrUndefinedTable):
		return "42P01"
	case errors.Is(err, executor.ErrDuplicateTable):
		return "42P07"
	case errors.Is(err, executor.ErrUndefinedColumn):
		return "42703"
	case errors.Is(err, executor.ErrUniqueViolation):
		return "23505"
	case errors.Is(err, executor.ErrNotNullViolation):
		return "23502"
	case errors.Is(err, query.ErrUnsupported):
		return "0A000"
	case query.IsValidationError(err):
		return "22023"
	default:
		return "XX000"
	}
}
