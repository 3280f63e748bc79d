// internal/manifest/manifest.go
// Package manifest parses web app manifests fetched from audited pages.
// Parsing is forgiving: malformed members are dropped with a warning on the
// returned manifest rather than failing the parse, since real-world
// manifests are frequently sloppy.
package manifest

import (
	"fmt"
	"net/url"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

var validDisplayModes = map[string]bool{
	"fullscreen": true,
	"standalone": true,
	"minimal-ui": true,
	"browser":    true,
}

const defaultDisplayMode = "browser"

// Parse parses raw manifest JSON fetched from manifestURL by a document at
// documentURL. It always returns a manifest; parse problems surface as
// warnings on the result.
func Parse(raw, manifestURL, documentURL string) *schemas.WebAppManifest {
	m := &schemas.WebAppManifest{
		URL: manifestURL,
		Raw: raw,
	}

	var members map[string]any
	if err := json.Unmarshal([]byte(raw), &members); err != nil {
		m.Warnings = append(m.Warnings, "manifest is not valid JSON")
		return m
	}

	m.Name = stringMember(members, "name", &m.Warnings)
	m.ShortName = stringMember(members, "short_name", &m.Warnings)
	m.ThemeColor = stringMember(members, "theme_color", &m.Warnings)
	m.BackgroundColor = stringMember(members, "background_color", &m.Warnings)
	m.Display = parseDisplay(members, &m.Warnings)
	m.StartURL = parseStartURL(members, manifestURL, documentURL, &m.Warnings)
	m.Icons = parseIcons(members, manifestURL, &m.Warnings)
	return m
}

// stringMember returns the named member when it is a string, warning and
// returning empty when the member exists with another type.
func stringMember(members map[string]any, key string, warnings *[]string) string {
	v, ok := members[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("manifest %s is not a string", key))
		return ""
	}
	return s
}

func parseDisplay(members map[string]any, warnings *[]string) string {
	display := stringMember(members, "display", warnings)
	if display == "" {
		return defaultDisplayMode
	}
	if !validDisplayModes[display] {
		*warnings = append(*warnings, fmt.Sprintf("manifest display mode %q is not recognized", display))
		return defaultDisplayMode
	}
	return display
}

// parseStartURL resolves start_url against the manifest URL. The result must
// be same-origin with the document; anything else falls back to the document
// URL with a warning.
func parseStartURL(members map[string]any, manifestURL, documentURL string, warnings *[]string) string {
	raw := stringMember(members, "start_url", warnings)
	if raw == "" {
		return documentURL
	}

	resolved, err := resolveURL(manifestURL, raw)
	if err != nil {
		*warnings = append(*warnings, "manifest start_url is not a valid URL")
		return documentURL
	}
	docParsed, err := url.Parse(documentURL)
	if err != nil {
		return documentURL
	}
	resParsed, _ := url.Parse(resolved)
	if resParsed.Scheme != docParsed.Scheme || resParsed.Host != docParsed.Host {
		*warnings = append(*warnings, "manifest start_url must be same-origin as the document")
		return documentURL
	}
	return resolved
}

func parseIcons(members map[string]any, manifestURL string, warnings *[]string) []schemas.ManifestIcon {
	v, ok := members["icons"]
	if !ok {
		return nil
	}
	entries, ok := v.([]any)
	if !ok {
		*warnings = append(*warnings, "manifest icons is not an array")
		return nil
	}

	var icons []schemas.ManifestIcon
	for _, raw := range entries {
		obj, ok := raw.(map[string]any)
		if !ok {
			*warnings = append(*warnings, "manifest icons entry is not an object")
			continue
		}
		src, _ := obj["src"].(string)
		if src == "" {
			*warnings = append(*warnings, "manifest icons entry has no src")
			continue
		}
		resolved, err := resolveURL(manifestURL, src)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("manifest icon src %q is not a valid URL", src))
			continue
		}
		icon := schemas.ManifestIcon{Src: resolved}
		icon.Sizes, _ = obj["sizes"].(string)
		icon.Type, _ = obj["type"].(string)
		icons = append(icons, icon)
	}
	return icons
}

func resolveURL(base, ref string) (string, error) {
	baseParsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refParsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseParsed.ResolveReference(refParsed).String(), nil
}
