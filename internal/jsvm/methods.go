package jsvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MethodKind classifies a plugin method. It is resolved once when the plugin
// loads and decides how callers drive the method and check its result.
type MethodKind int

const (
	KindCustom MethodKind = iota
	KindQuery
	KindDetail
	KindDownload
	KindAction
	KindSetting
)

var kindNames = map[MethodKind]string{
	KindCustom:   "custom",
	KindQuery:    "query",
	KindDetail:   "detail",
	KindDownload: "download",
	KindAction:   "action",
	KindSetting:  "setting",
}

func (k MethodKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MethodKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k MethodKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MethodKind) UnmarshalText(text []byte) error {
	*k = ParseMethodKind(string(text))
	return nil
}

// ParseMethodKind maps a declared kind name to a MethodKind. Unknown names
// are KindCustom.
func ParseMethodKind(s string) MethodKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range kindNames {
		if name == s {
			return kind
		}
	}
	return KindCustom
}

// kindFromName infers the kind of a bare method name.
func kindFromName(name string) MethodKind {
	switch strings.ToLower(name) {
	case "query", "search", "list":
		return KindQuery
	case "detail", "get", "info":
		return KindDetail
	case "download", "fetchbytes":
		return KindDownload
	case "invoke", "action":
		return KindAction
	case "set", "setting", "configure":
		return KindSetting
	}
	return KindCustom
}

// Method is one declared plugin method.
type Method struct {
	Name string     `json:"name"`
	Kind MethodKind `json:"kind"`
}

// Catalog is the plugin's declared method set.
type Catalog struct {
	methods map[string]Method
	// SDK is the declared host SDK constraint, if any.
	SDK string
}

// Lookup returns the declared method called name.
func (c *Catalog) Lookup(name string) (Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Kind returns the kind of name. Undeclared names are classified by name.
func (c *Catalog) Kind(name string) MethodKind {
	if m, ok := c.methods[name]; ok {
		return m.Kind
	}
	return kindFromName(name)
}

// Methods returns all declared methods sorted by name.
func (c *Catalog) Methods() []Method {
	out := make([]Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of declared methods.
func (c *Catalog) Len() int {
	return len(c.methods)
}

// resolveCatalog builds a Catalog from the exported getCapabilities() result.
// Accepted shapes are a list of names, a list of {name, kind} descriptors, or
// {methods: [...], sdk: "<constraint>"}. An sdk constraint that sdkVersion
// does not satisfy is an error.
func resolveCatalog(declared any, sdkVersion string) (*Catalog, error) {
	cat := &Catalog{methods: make(map[string]Method)}

	var list []any
	switch v := declared.(type) {
	case nil:
		return cat, nil
	case []any:
		list = v
	case map[string]any:
		if sdk, ok := v["sdk"].(string); ok {
			cat.SDK = sdk
		}
		if methods, ok := v["methods"].([]any); ok {
			list = methods
		}
	default:
		return nil, fmt.Errorf("getCapabilities returned %T, want array or object", declared)
	}

	for i, item := range list {
		switch entry := item.(type) {
		case string:
			cat.methods[entry] = Method{Name: entry, Kind: kindFromName(entry)}
		case map[string]any:
			name, _ := entry["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("capability %d has no name", i)
			}
			kind := kindFromName(name)
			if k, ok := entry["kind"].(string); ok && k != "" {
				kind = ParseMethodKind(k)
			}
			cat.methods[name] = Method{Name: name, Kind: kind}
		default:
			return nil, fmt.Errorf("capability %d: unsupported entry %T", i, item)
		}
	}

	if cat.SDK != "" {
		if err := checkSDK(cat.SDK, sdkVersion); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// checkSDK verifies that the host SDK version satisfies constraint.
func checkSDK(constraint, sdkVersion string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid sdk constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(sdkVersion)
	if err != nil {
		return fmt.Errorf("invalid host sdk version %q: %w", sdkVersion, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("plugin requires sdk %s, host provides %s", constraint, sdkVersion)
	}
	return nil
}
