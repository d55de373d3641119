package proxy

import (
	"sync"
	"testing"
)

func testSnapshot(t *testing.T, defaultProfile string) *Snapshot {
	t.Helper()
	profiles := ProfileRegistry{
		"default": {Scheme: SchemeDirect},
		"http-profile": {Scheme: SchemeHttp, Host: "proxy.test", Port: 8080},
	}
	router := Router{
		Default: defaultProfile,
		Rules: []Rule{
			{Pattern: mustCompile(t, "*.example.test"), Profile: "http-profile"},
		},
	}
	if reasons := Validate(profiles, router); len(reasons) > 0 {
		t.Fatalf("unexpected validation failures: %v", reasons)
	}
	return &Snapshot{Profiles: profiles, Router: router}
}

func TestValidateCatchesUnregisteredDefault(t *testing.T) {
	profiles := ProfileRegistry{"default": {Scheme: SchemeDirect}}
	router := Router{Default: "missing"}
	reasons := Validate(profiles, router)
	if len(reasons) == 0 {
		t.Fatal("expected a validation failure for an unregistered default profile")
	}
}

func TestValidateCatchesUnregisteredRuleProfile(t *testing.T) {
	profiles := ProfileRegistry{"default": {Scheme: SchemeDirect}}
	router := Router{
		Default: "default",
		Rules:   []Rule{{Pattern: mustCompile(t, "*.x"), Profile: "ghost"}},
	}
	reasons := Validate(profiles, router)
	if len(reasons) == 0 {
		t.Fatal("expected a validation failure for an unregistered rule profile")
	}
}

func TestCellInFlightHandlerKeepsAcceptTimeSnapshot(t *testing.T) {
	cell := NewCell(testSnapshot(t, "default"))

	captured := cell.Load()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cell.Store(testSnapshot(t, "http-profile"))
	}()
	wg.Wait()

	if got := captured.Router.Resolve("nowhere.test"); got != "default" {
		t.Errorf("handle captured before store observed %q, want default", got)
	}
	if got := cell.Load().Router.Resolve("nowhere.test"); got != "http-profile" {
		t.Errorf("new load after store observed %q, want http-profile", got)
	}
}
