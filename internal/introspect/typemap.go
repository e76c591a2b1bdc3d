package introspect

import (
	"strings"

	"github.com/koustreak/dataagent/internal/model"
)

// columnTypes maps source-level type names onto canonical column types.
// Go names come first; the portable names let manifests describe types
// from other ecosystems.
var columnTypes = map[string]model.ColumnType{
	"string": model.ColumnVarchar,

	"int":    model.ColumnInteger,
	"int8":   model.ColumnInteger,
	"int16":  model.ColumnInteger,
	"int32":  model.ColumnInteger,
	"uint":   model.ColumnInteger,
	"uint8":  model.ColumnInteger,
	"uint16": model.ColumnInteger,
	"uint32": model.ColumnInteger,

	"int64":   model.ColumnBigint,
	"uint64":  model.ColumnBigint,
	"big.Int": model.ColumnBigint,

	"float64": model.ColumnDouble,
	"float32": model.ColumnFloat,
	"bool":    model.ColumnBoolean,

	"time.Time":  model.ColumnTimestamp,
	"civil.Date": model.ColumnDate,
	"civil.Time": model.ColumnTime,

	"decimal.Decimal": model.ColumnDecimal,
	"big.Float":       model.ColumnDecimal,
	"big.Rat":         model.ColumnDecimal,

	"sql.NullString":  model.ColumnVarchar,
	"sql.NullInt16":   model.ColumnInteger,
	"sql.NullInt32":   model.ColumnInteger,
	"sql.NullInt64":   model.ColumnBigint,
	"sql.NullFloat64": model.ColumnDouble,
	"sql.NullBool":    model.ColumnBoolean,
	"sql.NullTime":    model.ColumnTimestamp,

	"String":        model.ColumnVarchar,
	"Integer":       model.ColumnInteger,
	"Long":          model.ColumnBigint,
	"Double":        model.ColumnDouble,
	"Float":         model.ColumnFloat,
	"Boolean":       model.ColumnBoolean,
	"LocalDateTime": model.ColumnTimestamp,
	"LocalDate":     model.ColumnDate,
	"LocalTime":     model.ColumnTime,
	"BigDecimal":    model.ColumnDecimal,
	"BigInteger":    model.ColumnBigint,
}

// ColumnTypeFor resolves the column type of a source-level type name.
// kind is the underlying kind of a named type and may be empty. Unmapped
// types are VARCHAR.
func ColumnTypeFor(typeName, kind string) model.ColumnType {
	name := strings.TrimLeft(strings.TrimSpace(typeName), "*")
	if ct, ok := columnTypes[name]; ok {
		return ct
	}
	if ct, ok := columnTypes[kind]; ok {
		return ct
	}
	return model.ColumnVarchar
}
