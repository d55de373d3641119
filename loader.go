package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

type rawConfig struct {
	Switch struct {
		Default string `json:"default"`
		Rules   []struct {
			Pattern string `json:"pattern"`
			Profile string `json:"profile"`
		} `json:"rules"`
	} `json:"switch"`
	Profiles map[string]struct {
		Scheme string `json:"scheme"`
		Host   string `json:"host"`
		Port   int    `json:"port"`
	} `json:"profiles"`
}

// Load reads the config file at path, tolerating "//" and "/* */" comments
// and trailing commas, parses and validates it per §4.5, and returns a
// fresh Snapshot. Failure kinds are ConfigError{Io|Parse|Validation}.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigIoError(err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Snapshot, error) {
	stripped := stripTrailingCommas(stripComments(data))

	var raw rawConfig
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, NewConfigParseError(err)
	}

	profiles := make(ProfileRegistry, len(raw.Profiles))
	for name, rp := range raw.Profiles {
		profiles[name] = Profile{Scheme: Scheme(rp.Scheme), Host: rp.Host, Port: rp.Port}
	}

	router := Router{Default: raw.Switch.Default}
	for _, rr := range raw.Switch.Rules {
		pattern, err := CompilePattern(rr.Pattern)
		if err != nil {
			return nil, NewConfigValidationError(fmt.Sprintf("rule pattern %q: %v", rr.Pattern, err))
		}
		router.Rules = append(router.Rules, Rule{Pattern: pattern, Profile: rr.Profile})
	}

	if reasons := Validate(profiles, router); len(reasons) > 0 {
		return nil, NewConfigValidationError(reasons...)
	}

	return &Snapshot{Profiles: profiles, Router: router}, nil
}

// stripComments removes "//" line comments and "/* */" block comments from
// src, leaving everything inside string literals untouched. No example
// repo in the corpus vendors a JSONC/HJSON/JSON5 library, so this is a
// small hand-rolled scanner ahead of encoding/json rather than a fabricated
// dependency (see DESIGN.md).
func stripComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			i--
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// stripTrailingCommas removes a "," that appears (ignoring whitespace)
// immediately before a closing "}" or "]", again respecting string
// literals.
func stripTrailingCommas(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		if c == ',' {
			j := i + 1
			for j < len(src) && isJSONSpace(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
