package jsonutil

import (
	"encoding/json"
	"testing"

	"fixit/internal/tester"
)

func TestRepair_ValidPassthrough(t *testing.T) {
	out, ok := Repair([]byte(`  {"a": 1}  `))
	tester.True(t, ok)
	tester.Eq(t, string(out), `{"a": 1}`)
}

func TestRepair_MarkdownFences(t *testing.T) {
	raw := []byte("```json\n{\"a\": 1, \"b\": \"x\"}\n```")
	out, ok := Repair(raw)
	tester.True(t, ok)
	var v map[string]any
	tester.NoErr(t, json.Unmarshal(out, &v))
	tester.Eq[any](t, v["a"], float64(1))
}

func TestRepair_TrailingCommas(t *testing.T) {
	out, ok := Repair([]byte(`{"a": [1, 2,], "b": {"c": 3,},}`))
	tester.True(t, ok)
	tester.True(t, json.Valid(out))
}

func TestRepair_ProseAroundObject(t *testing.T) {
	raw := []byte("Here is the result you asked for:\n{\"a\": 1}\nHope this helps!")
	out, ok := Repair(raw)
	tester.True(t, ok)
	var v struct {
		A int `json:"a"`
	}
	tester.NoErr(t, json.Unmarshal(out, &v))
	tester.Eq(t, v.A, 1)
}

func TestRepair_NewlineInsideString(t *testing.T) {
	raw := []byte("{\"msg\": \"line one\nline two\"}")
	out, ok := Repair(raw)
	tester.True(t, ok)
	var v struct {
		Msg string `json:"msg"`
	}
	tester.NoErr(t, json.Unmarshal(out, &v))
	tester.Eq(t, v.Msg, "line one line two")
}

func TestRepair_TruncatedTail(t *testing.T) {
	raw := []byte(`{"steps": [{"n": 1, "text": "power off"}, {"n": 2, "text": "open pan`)
	out, ok := Repair(raw)
	tester.True(t, ok, "truncated document should be salvageable")
	tester.True(t, json.Valid(out))
	var v struct {
		Steps []struct {
			N int `json:"n"`
		} `json:"steps"`
	}
	tester.NoErr(t, json.Unmarshal(out, &v))
	tester.True(t, len(v.Steps) >= 1, "at least the complete elements survive")
	tester.Eq(t, v.Steps[0].N, 1)
}

func TestRepair_Hopeless(t *testing.T) {
	_, ok := Repair([]byte("no json here at all"))
	tester.False(t, ok)
}

func TestUnmarshal_RepairsFirst(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	tester.NoErr(t, Unmarshal([]byte("```json\n{\"a\": 7}\n```"), &v))
	tester.Eq(t, v.A, 7)
}
