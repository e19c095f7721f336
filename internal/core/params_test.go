package core

import "testing"

func TestParseParamsDefaultsUserToAdmin(t *testing.T) {
	p := parseParams("")
	if p.User != "admin" {
		t.Fatalf("expected default user admin, got %s", p.User)
	}
	if p.Extra == nil {
		t.Fatalf("expected a non-nil Extra map even on empty input")
	}
}

func TestParseParamsReadsUserAndExtra(t *testing.T) {
	p := parseParams(`{"user":"carol","region":"us-east"}`)
	if p.User != "carol" {
		t.Fatalf("expected user carol, got %s", p.User)
	}
	if p.Extra["region"] != "us-east" {
		t.Fatalf("expected extra region us-east, got %q", p.Extra["region"])
	}
}

func TestParseParamsFallsBackOnMalformedJSON(t *testing.T) {
	p := parseParams("not json")
	if p.User != "admin" {
		t.Fatalf("expected malformed input to fall back to the default user, got %s", p.User)
	}
}

func TestParseParamsIgnoresEmptyUserField(t *testing.T) {
	p := parseParams(`{"user":""}`)
	if p.User != "admin" {
		t.Fatalf("expected an empty user field to keep the default, got %s", p.User)
	}
}

func TestParamsIsCachedAcrossCalls(t *testing.T) {
	t.Setenv("NCUBE_PARAMS", `{"user":"dave"}`)
	resetParamsForTest()
	first := Params()
	if first.User != "dave" {
		t.Fatalf("expected user dave, got %s", first.User)
	}

	t.Setenv("NCUBE_PARAMS", `{"user":"erin"}`)
	second := Params()
	if second.User != "dave" {
		t.Fatalf("expected Params() to stay cached at dave despite the env change, got %s", second.User)
	}
	resetParamsForTest()
}
