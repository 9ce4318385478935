package convert

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"pg-graphql/internal/introspection"
)

func scalar(kind introspection.ScalarKind) introspection.TypeDescriptor {
	return introspection.TypeDescriptor{Variant: introspection.VariantScalar, Scalar: kind}
}

func arrayOf(elem introspection.TypeDescriptor) introspection.TypeDescriptor {
	return introspection.TypeDescriptor{Variant: introspection.VariantArray, Elem: &elem}
}

func TestFromDBJSON(t *testing.T) {
	c := New(nil)
	out, err := c.FromDB([]byte(`{"a": [1, 2]}`), scalar(introspection.ScalarJSONB))
	if err != nil {
		t.Fatalf("FromDB() error: %v", err)
	}
	tree, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected parsed tree, got %T", out)
	}
	if len(tree["a"].([]interface{})) != 2 {
		t.Fatalf("unexpected tree: %v", tree)
	}

	if _, err := c.FromDB([]byte(`{broken`), scalar(introspection.ScalarJSON)); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestFromDBTemporal(t *testing.T) {
	c := New(nil)
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500000000, time.UTC)

	out, err := c.FromDB(ts, scalar(introspection.ScalarTimestamp))
	if err != nil || out != "2024-03-01T12:30:00.5Z" {
		t.Fatalf("timestamp = %v err=%v", out, err)
	}
	out, err = c.FromDB(ts, scalar(introspection.ScalarDate))
	if err != nil || out != "2024-03-01" {
		t.Fatalf("date = %v err=%v", out, err)
	}
	out, err = c.FromDB("1 day 02:03:04.5", scalar(introspection.ScalarInterval))
	if err != nil || out != "P1DT2H3M4.5S" {
		t.Fatalf("interval = %v err=%v", out, err)
	}
	out, err = c.FromDB("2 years 3 mons", scalar(introspection.ScalarInterval))
	if err != nil || out != "P2Y3M" {
		t.Fatalf("interval = %v err=%v", out, err)
	}
}

func TestFromDBArrays(t *testing.T) {
	c := New(nil)

	out, err := c.FromDB("{a,b,NULL}", arrayOf(scalar(introspection.ScalarText)))
	if err != nil {
		t.Fatalf("FromDB() error: %v", err)
	}
	want := []interface{}{"a", "b", nil}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("array = %v, want %v", out, want)
	}

	out, err = c.FromDB(`{"with, comma","with \"quote\""}`, arrayOf(scalar(introspection.ScalarText)))
	if err != nil {
		t.Fatalf("FromDB() error: %v", err)
	}
	want = []interface{}{"with, comma", `with "quote"`}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("array = %v, want %v", out, want)
	}

	out, err = c.FromDB("{{1,2},{3,4}}", arrayOf(scalar(introspection.ScalarInt32)))
	if err != nil {
		t.Fatalf("FromDB() error: %v", err)
	}
	nested := out.([]interface{})
	if len(nested) != 2 || !reflect.DeepEqual(nested[0], []interface{}{int64(1), int64(2)}) {
		t.Fatalf("nested array = %v", out)
	}
}

func TestFromDBBytesAndUUID(t *testing.T) {
	c := New(nil)
	out, err := c.FromDB([]byte{0xDE, 0xAD, 0xBE, 0xEF}, scalar(introspection.ScalarBytea))
	if err != nil || out != "deadbeef" {
		t.Fatalf("bytea = %v err=%v", out, err)
	}

	out, err = c.FromDB("A0EEBC99-9C0B-4EF8-BB6D-6BB9BD380A11", scalar(introspection.ScalarUUID))
	if err != nil || out != "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11" {
		t.Fatalf("uuid = %v err=%v", out, err)
	}
	if _, err := c.FromDB("nope", scalar(introspection.ScalarUUID)); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("expected ErrInvalidUUID, got %v", err)
	}
}

func TestFromDBComposite(t *testing.T) {
	c := &Converter{Composites: map[string]introspection.CompositeType{
		"full_address": {
			Name: "full_address",
			Attributes: []introspection.CompositeAttribute{
				{Name: "street", Type: scalar(introspection.ScalarText), Order: 1, Nullable: true},
				{Name: "city", Type: scalar(introspection.ScalarText), Order: 2, Nullable: true},
				{Name: "zip", Type: scalar(introspection.ScalarText), Order: 3, Nullable: true},
			},
		},
	}}
	desc := introspection.TypeDescriptor{Variant: introspection.VariantComposite, TypeName: "full_address"}

	out, err := c.FromDB(`("1 Main St",London,)`, desc)
	if err != nil {
		t.Fatalf("FromDB() error: %v", err)
	}
	m := out.(map[string]interface{})
	if m["street"] != "1 Main St" || m["city"] != "London" || m["zip"] != nil {
		t.Fatalf("composite = %v", m)
	}
}

func TestToDBEnumCaseSensitive(t *testing.T) {
	c := New(nil)
	desc := introspection.TypeDescriptor{
		Variant:    introspection.VariantEnum,
		TypeName:   "mood",
		EnumValues: []string{"sad", "ok", "happy"},
	}

	out, err := c.ToDB("happy", desc)
	if err != nil || out != "happy" {
		t.Fatalf("enum = %v err=%v", out, err)
	}
	if _, err := c.ToDB("HAPPY", desc); !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("expected case-sensitive rejection, got %v", err)
	}
}

func TestToDBByteaAcceptsHexAndBase64(t *testing.T) {
	c := New(nil)
	out, err := c.ToDB("deadbeef", scalar(introspection.ScalarBytea))
	if err != nil || !reflect.DeepEqual(out, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("hex bytea = %v err=%v", out, err)
	}
	out, err = c.ToDB("3q2+7w==", scalar(introspection.ScalarBytea))
	if err != nil || !reflect.DeepEqual(out, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("base64 bytea = %v err=%v", out, err)
	}
}

func TestToDBNetworkAddresses(t *testing.T) {
	c := New(nil)
	if _, err := c.ToDB("192.168.0.1", scalar(introspection.ScalarInet)); err != nil {
		t.Fatalf("valid inet rejected: %v", err)
	}
	if _, err := c.ToDB("10.0.0.0/8", scalar(introspection.ScalarCIDR)); err != nil {
		t.Fatalf("valid cidr rejected: %v", err)
	}
	if _, err := c.ToDB("not-an-ip", scalar(introspection.ScalarInet)); !errors.Is(err, ErrInvalidNetworkAddress) {
		t.Fatalf("expected ErrInvalidNetworkAddress, got %v", err)
	}
	if _, err := c.ToDB("08:00:2b:01:02:03", scalar(introspection.ScalarMacAddr)); err != nil {
		t.Fatalf("valid mac rejected: %v", err)
	}
}

func TestToDBTimestamp(t *testing.T) {
	c := New(nil)
	out, err := c.ToDB("2024-03-01T12:30:00Z", scalar(introspection.ScalarTimestampTZ))
	if err != nil {
		t.Fatalf("ToDB() error: %v", err)
	}
	if _, ok := out.(time.Time); !ok {
		t.Fatalf("expected time.Time, got %T", out)
	}
	if _, err := c.ToDB("yesterday-ish", scalar(introspection.ScalarTimestamp)); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestToDBJSONAcceptsAnyShape(t *testing.T) {
	c := New(nil)
	desc := scalar(introspection.ScalarJSONB)

	out, err := c.ToDB(`{"a":1}`, desc)
	if err != nil || out != `{"a":1}` {
		t.Fatalf("json string = %v err=%v", out, err)
	}
	out, err = c.ToDB(map[string]interface{}{"a": float64(1)}, desc)
	if err != nil || out != `{"a":1}` {
		t.Fatalf("json object = %v err=%v", out, err)
	}
	out, err = c.ToDB("plain words", desc)
	if err != nil || out != `"plain words"` {
		t.Fatalf("non-json string = %v err=%v", out, err)
	}
}

func TestToDBArrayLiteral(t *testing.T) {
	c := New(nil)
	out, err := c.ToDB([]interface{}{"a", nil, "with space"}, arrayOf(scalar(introspection.ScalarText)))
	if err != nil {
		t.Fatalf("ToDB() error: %v", err)
	}
	if out != `{a,NULL,"with space"}` {
		t.Fatalf("array literal = %v", out)
	}
}
