package sqlite

import (
	"reflect"
	"testing"

	"github.com/partcat/partcat/internal/filter/parser"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		filter string
		where  string
		args   []interface{}
	}{
		{"", "1", nil},
		{
			"dt > 1",
			"partcat_cmp(?, " + keyValueSQL + ", ?, ?)",
			[]interface{}{">", "dt", int64(parser.LiteralInteger), "1"},
		},
		{
			"region IN ('us', 'eu')",
			"partcat_in(" + keyValueSQL + ", ?, ?, ?, ?)",
			[]interface{}{"region", int64(parser.LiteralString), "us", int64(parser.LiteralString), "eu"},
		},
		{
			"NOT region LIKE 'e%'",
			"(NOT partcat_like(" + keyValueSQL + ", ?))",
			[]interface{}{"region", "e%"},
		},
		{
			"(a = TRUE OR b = 1.5) AND c != 'x'",
			"((partcat_cmp(?, " + keyValueSQL + ", ?, ?) OR partcat_cmp(?, " + keyValueSQL + ", ?, ?)) AND partcat_cmp(?, " + keyValueSQL + ", ?, ?))",
			[]interface{}{
				"=", "a", int64(parser.LiteralBoolean), "true",
				"=", "b", int64(parser.LiteralDecimal), "1.5",
				"!=", "c", int64(parser.LiteralString), "x",
			},
		},
	}

	for _, tt := range tests {
		where, args := Translate(parser.MustParse(tt.filter))
		if where != tt.where {
			t.Errorf("Translate(%q) where:\n got  %s\n want %s", tt.filter, where, tt.where)
		}
		if !reflect.DeepEqual(args, tt.args) {
			t.Errorf("Translate(%q) args = %v, want %v", tt.filter, args, tt.args)
		}
	}
}

func TestTranslateHandBuiltNodes(t *testing.T) {
	where, args := Translate(&parser.Identifier{Name: "active"})
	if where != "partcat_truthy("+keyValueSQL+")" || !reflect.DeepEqual(args, []interface{}{"active"}) {
		t.Errorf("unexpected identifier translation %s %v", where, args)
	}
	if where, _ := Translate(parser.NewBool(false)); where != "0" {
		t.Errorf("expected FALSE to render as 0, got %s", where)
	}
	if where, _ := Translate(nil); where != "1" {
		t.Errorf("expected nil filter to render as 1, got %s", where)
	}
}

func TestSQLFunctions(t *testing.T) {
	str := int64(parser.LiteralString)
	num := int64(parser.LiteralInteger)

	if sqlCompare(">", "20200102", num, "20200101") != 1 {
		t.Error("numeric comparison failed")
	}
	if sqlCompare("=", nil, num, "1") != 0 {
		t.Error("missing key must not match")
	}
	if sqlCompare("=", []byte("us"), str, "us") != 1 {
		t.Error("blob values should compare as text")
	}
	if sqlIn("eu", str, "us", str, "eu") != 1 || sqlIn("ap", str, "us") != 0 || sqlIn(nil, str, "us") != 0 {
		t.Error("IN membership failed")
	}
	if sqlLike("europe", "eu%") != 1 || sqlLike(nil, "%") != 0 {
		t.Error("LIKE failed")
	}
	if sqlTruthy("TRUE") != 1 || sqlTruthy("yes") != 0 || sqlTruthy(nil) != 0 {
		t.Error("truthiness failed")
	}
}
