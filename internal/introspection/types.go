package introspection

import "strings"

// ScalarKind enumerates the scalar column types the generator knows how to map.
type ScalarKind string

const (
	ScalarInt32       ScalarKind = "int32"
	ScalarInt64       ScalarKind = "int64"
	ScalarSmallInt    ScalarKind = "smallint"
	ScalarFloat32     ScalarKind = "float32"
	ScalarFloat64     ScalarKind = "float64"
	ScalarNumeric     ScalarKind = "numeric"
	ScalarBool        ScalarKind = "bool"
	ScalarText        ScalarKind = "text"
	ScalarVarChar     ScalarKind = "varchar"
	ScalarChar        ScalarKind = "char"
	ScalarUUID        ScalarKind = "uuid"
	ScalarDate        ScalarKind = "date"
	ScalarTimestamp   ScalarKind = "timestamp"
	ScalarTimestampTZ ScalarKind = "timestamptz"
	ScalarTime        ScalarKind = "time"
	ScalarTimeTZ      ScalarKind = "timetz"
	ScalarInterval    ScalarKind = "interval"
	ScalarJSON        ScalarKind = "json"
	ScalarJSONB       ScalarKind = "jsonb"
	ScalarBytea       ScalarKind = "bytea"
	ScalarInet        ScalarKind = "inet"
	ScalarCIDR        ScalarKind = "cidr"
	ScalarMacAddr     ScalarKind = "macaddr"
	ScalarBit         ScalarKind = "bit"
	ScalarVarBit      ScalarKind = "varbit"
	ScalarXML         ScalarKind = "xml"
)

// TypeVariant tags the shape of a TypeDescriptor.
type TypeVariant int

const (
	VariantUnknown TypeVariant = iota
	VariantScalar
	VariantArray
	VariantEnum
	VariantComposite
	VariantDomain
)

// TypeDescriptor is the tagged description of a column's database type.
// Exactly the fields implied by Variant are meaningful.
type TypeDescriptor struct {
	Variant TypeVariant

	// Scalar kind when Variant is VariantScalar.
	Scalar ScalarKind
	// Elem is the element type when Variant is VariantArray.
	Elem *TypeDescriptor
	// Base is the underlying type when Variant is VariantDomain.
	Base *TypeDescriptor
	// TypeName is the database type name for enums and composites,
	// or the raw type string when Variant is VariantUnknown.
	TypeName string
	// EnumValues is the ordered label list when Variant is VariantEnum.
	EnumValues []string
}

// IsScalar reports whether the descriptor is the given scalar kind,
// looking through domains.
func (d TypeDescriptor) IsScalar(kind ScalarKind) bool {
	resolved := d.Resolve()
	return resolved.Variant == VariantScalar && resolved.Scalar == kind
}

// Resolve follows domain chains to the underlying type.
func (d TypeDescriptor) Resolve() TypeDescriptor {
	for d.Variant == VariantDomain && d.Base != nil {
		d = *d.Base
	}
	return d
}

// IsJSON reports whether the resolved type is json or jsonb.
func (d TypeDescriptor) IsJSON() bool {
	return d.IsScalar(ScalarJSON) || d.IsScalar(ScalarJSONB)
}

// IsTemporal reports whether the resolved type is a date/time kind.
func (d TypeDescriptor) IsTemporal() bool {
	switch d.Resolve().Scalar {
	case ScalarDate, ScalarTimestamp, ScalarTimestampTZ, ScalarTime, ScalarTimeTZ, ScalarInterval:
		return d.Resolve().Variant == VariantScalar
	}
	return false
}

// IsTextual reports whether the resolved type holds character data.
func (d TypeDescriptor) IsTextual() bool {
	switch d.Resolve().Scalar {
	case ScalarText, ScalarVarChar, ScalarChar, ScalarXML, ScalarInet, ScalarCIDR, ScalarMacAddr, ScalarBit, ScalarVarBit:
		return d.Resolve().Variant == VariantScalar
	}
	return false
}

// IsNumeric reports whether the resolved type is a number kind.
func (d TypeDescriptor) IsNumeric() bool {
	switch d.Resolve().Scalar {
	case ScalarInt32, ScalarInt64, ScalarSmallInt, ScalarFloat32, ScalarFloat64, ScalarNumeric:
		return d.Resolve().Variant == VariantScalar
	}
	return false
}

// scalarKindsByName maps information_schema data_type / udt_name spellings to
// scalar kinds. Both spellings appear depending on which catalog view
// produced the string.
var scalarKindsByName = map[string]ScalarKind{
	"integer":                     ScalarInt32,
	"int":                         ScalarInt32,
	"int4":                        ScalarInt32,
	"serial":                      ScalarInt32,
	"bigint":                      ScalarInt64,
	"int8":                        ScalarInt64,
	"bigserial":                   ScalarInt64,
	"smallint":                    ScalarSmallInt,
	"int2":                        ScalarSmallInt,
	"smallserial":                 ScalarSmallInt,
	"real":                        ScalarFloat32,
	"float4":                      ScalarFloat32,
	"double precision":            ScalarFloat64,
	"float8":                      ScalarFloat64,
	"numeric":                     ScalarNumeric,
	"decimal":                     ScalarNumeric,
	"money":                       ScalarNumeric,
	"boolean":                     ScalarBool,
	"bool":                        ScalarBool,
	"text":                        ScalarText,
	"name":                        ScalarText,
	"character varying":           ScalarVarChar,
	"varchar":                     ScalarVarChar,
	"character":                   ScalarChar,
	"char":                        ScalarChar,
	"bpchar":                      ScalarChar,
	"uuid":                        ScalarUUID,
	"date":                        ScalarDate,
	"timestamp without time zone": ScalarTimestamp,
	"timestamp":                   ScalarTimestamp,
	"timestamp with time zone":    ScalarTimestampTZ,
	"timestamptz":                 ScalarTimestampTZ,
	"time without time zone":      ScalarTime,
	"time":                        ScalarTime,
	"time with time zone":         ScalarTimeTZ,
	"timetz":                      ScalarTimeTZ,
	"interval":                    ScalarInterval,
	"json":                        ScalarJSON,
	"jsonb":                       ScalarJSONB,
	"bytea":                       ScalarBytea,
	"inet":                        ScalarInet,
	"cidr":                        ScalarCIDR,
	"macaddr":                     ScalarMacAddr,
	"macaddr8":                    ScalarMacAddr,
	"bit":                         ScalarBit,
	"bit varying":                 ScalarVarBit,
	"varbit":                      ScalarVarBit,
	"xml":                         ScalarXML,
}

// typeResolver resolves raw catalog type strings against the schema's custom
// enum and composite types.
type typeResolver struct {
	enums      map[string]EnumType
	composites map[string]CompositeType
}

// resolveColumnType builds a TypeDescriptor from the pair of strings
// information_schema.columns reports: data_type (e.g. "integer", "ARRAY",
// "USER-DEFINED") and udt_name (e.g. "int4", "_int4", "mood").
func (r typeResolver) resolveColumnType(dataType, udtName string) TypeDescriptor {
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	udtName = strings.TrimSpace(udtName)

	if dataType == "array" || strings.HasPrefix(udtName, "_") {
		elem := r.resolveNamedType(strings.TrimPrefix(udtName, "_"))
		return TypeDescriptor{Variant: VariantArray, Elem: &elem}
	}
	if dataType == "user-defined" {
		return r.resolveNamedType(udtName)
	}
	if kind, ok := scalarKindsByName[dataType]; ok {
		return TypeDescriptor{Variant: VariantScalar, Scalar: kind}
	}
	return r.resolveNamedType(udtName)
}

// resolveNamedType maps a bare type name, preferring scalar spellings and
// falling back to the schema's enums and composites.
func (r typeResolver) resolveNamedType(name string) TypeDescriptor {
	if kind, ok := scalarKindsByName[strings.ToLower(name)]; ok {
		return TypeDescriptor{Variant: VariantScalar, Scalar: kind}
	}
	if enum, ok := r.enums[name]; ok {
		return TypeDescriptor{Variant: VariantEnum, TypeName: enum.Name, EnumValues: enum.Values}
	}
	if _, ok := r.composites[name]; ok {
		return TypeDescriptor{Variant: VariantComposite, TypeName: name}
	}
	return TypeDescriptor{Variant: VariantUnknown, TypeName: name}
}
