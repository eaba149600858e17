package api

import (
	"net/http/httptest"
	"testing"
)

func TestParseParamsDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/sample", nil)
	specs := []ParamSpec{
		{Name: "count", Type: ParamInteger, Default: int64(100)},
		{Name: "from", Type: ParamUnsignedInteger},
	}
	values, err := ParseParams(req, specs)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if values["count"] != int64(100) {
		t.Errorf("count = %v, want default 100", values["count"])
	}
	if values["from"] != nil {
		t.Errorf("from = %v, want nil (no default, not required)", values["from"])
	}
}

func TestParseParamsRequiredMissing(t *testing.T) {
	req := httptest.NewRequest("GET", "/sample", nil)
	specs := []ParamSpec{{Name: "path", Type: ParamString, Required: true}}
	_, err := ParseParams(req, specs)
	if err == nil {
		t.Fatal("expected ParameterError for missing required param")
	}
	if _, ok := err.(*ParameterError); !ok {
		t.Fatalf("err type = %T, want *ParameterError", err)
	}
}

func TestParseParamsTypedConversion(t *testing.T) {
	req := httptest.NewRequest("GET", "/sample?from=108&count=50&interval=0.5&path=//Axes", nil)
	specs := []ParamSpec{
		{Name: "from", Type: ParamUnsignedInteger},
		{Name: "count", Type: ParamInteger},
		{Name: "interval", Type: ParamDouble},
		{Name: "path", Type: ParamString},
	}
	values, err := ParseParams(req, specs)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if values["from"] != uint64(108) {
		t.Errorf("from = %v, want 108", values["from"])
	}
	if values["count"] != int64(50) {
		t.Errorf("count = %v, want 50", values["count"])
	}
	if values["interval"] != 0.5 {
		t.Errorf("interval = %v, want 0.5", values["interval"])
	}
	if values["path"] != "//Axes" {
		t.Errorf("path = %v, want //Axes", values["path"])
	}
}

func TestParseParamsConversionFailure(t *testing.T) {
	req := httptest.NewRequest("GET", "/sample?count=notanumber", nil)
	specs := []ParamSpec{{Name: "count", Type: ParamInteger}}
	_, err := ParseParams(req, specs)
	if err == nil {
		t.Fatal("expected ParameterError for bad conversion")
	}
}

func TestParseParamsUnknownIgnored(t *testing.T) {
	req := httptest.NewRequest("GET", "/sample?bogus=1", nil)
	values, err := ParseParams(req, nil)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}
