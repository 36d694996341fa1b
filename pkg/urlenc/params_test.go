package urlenc

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseParameters(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"basic", "a=1&b=2&c", map[string]string{"a": "1", "b": "2", "c": ""}},
		{"decoded values", "name=John+Doe&tag=a%3Db", map[string]string{"name": "John Doe", "tag": "a=b"}},
		// The whole string is decoded before splitting, so an escaped '&'
		// becomes a live separator. Pinned like the empty-segment case.
		{"decoded separator splits", "city=N%26B", map[string]string{"city": "N", "B": ""}},
		{"duplicate name last wins", "k=1&k=2", map[string]string{"k": "2"}},
		{"value with equals", "expr=a=b", map[string]string{"expr": "a=b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseParameters(tc.raw)
			if err != nil {
				t.Fatalf("ParseParameters(%q): unexpected error: %v", tc.raw, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseParameters(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

// Consecutive and trailing '&' produce an empty-named entry. This pins that
// behavior: if empty segments are ever suppressed, this test must
// change too.
func TestParseParametersEmptySegments(t *testing.T) {
	got, err := ParseParameters("a=1&&b=2&")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"a": "1", "b": "2", "": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseParametersMalformed(t *testing.T) {
	if _, err := ParseParameters("a=%zz"); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("got %v, want ErrMalformedEncoding", err)
	}
}

func TestParseCookies(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"basic", "SID=abc; foo=bar", map[string]string{"SID": "abc", "foo": "bar"}},
		{"no separator segment dropped", "junk; a=1", map[string]string{"a": "1"}},
		{"empty name dropped", "=v; a=1", map[string]string{"a": "1"}},
		{"empty value dropped", "a=; b=2", map[string]string{"b": "2"}},
		{"value with equals", "tok=a=b", map[string]string{"tok": "a=b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCookies(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseCookies(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

// Cookie values are stored undecoded even when they carry percent escapes.
func TestParseCookiesValuesStayEncoded(t *testing.T) {
	got := ParseCookies("pref=a%20b; raw=x+y")
	want := map[string]string{"pref": "a%20b", "raw": "x+y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
