package proxy

import (
	"errors"
	"testing"
)

func TestParseConfigTolerantOfCommentsAndTrailingCommas(t *testing.T) {
	src := []byte(`{
		// top-level switch
		"switch": {
			"default": "direct", // fallback
			"rules": [
				{ "pattern": "*.example.test", "profile": "proxy", },
			],
		},
		/* profiles block */
		"profiles": {
			"direct": { "scheme": "direct" },
			"proxy": { "scheme": "http", "host": "10.0.0.1", "port": 8080 },
		},
	}`)

	snap, err := parseConfig(src)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if got := snap.Router.Resolve("a.example.test"); got != "proxy" {
		t.Errorf("Resolve(a.example.test) = %q, want proxy", got)
	}
	if got := snap.Router.Resolve("nowhere.test"); got != "direct" {
		t.Errorf("Resolve(nowhere.test) = %q, want direct", got)
	}
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	src := []byte(`{
		"switch": {"default": "direct", "rules": []},
		"profiles": {"direct": {"scheme": "direct"}},
		"extra": true
	}`)
	_, err := parseConfig(src)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ConfigParse {
		t.Fatalf("expected a ConfigParse error for unknown field, got %v", err)
	}
}

func TestParseConfigValidationFailure(t *testing.T) {
	src := []byte(`{
		"switch": {"default": "ghost", "rules": []},
		"profiles": {"direct": {"scheme": "direct"}}
	}`)
	_, err := parseConfig(src)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ConfigValidation {
		t.Fatalf("expected a ConfigValidation error for missing default profile, got %v", err)
	}
	if len(cfgErr.Reasons) == 0 {
		t.Fatal("expected at least one validation reason")
	}
}

func TestParseConfigMalformedJSON(t *testing.T) {
	_, err := parseConfig([]byte(`{ not json `))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ConfigParse {
		t.Fatalf("expected a ConfigParse error for malformed JSON, got %v", err)
	}
}

func TestLoadMissingFileIsIoError(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.json")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ConfigIo {
		t.Fatalf("expected a ConfigIo error for a missing file, got %v", err)
	}
}
