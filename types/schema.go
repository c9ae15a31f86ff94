package types

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// StringFormat represents the string formats the validator understands.
// Other formats are carried through but never checked.
type StringFormat string

const (
	FormatEmail StringFormat = "email"
	FormatURI   StringFormat = "uri"
)

// SchemaInfo is the structural subset of a JSON schema used for request and
// response body checks.
//
// References to shared component schemas are not expanded: they become a bare
// object placeholder with Ref set to the original pointer.
type SchemaInfo struct {
	Type        SchemaType             `json:"type,omitempty" yaml:"type,omitempty"`
	Format      StringFormat           `json:"format,omitempty" yaml:"format,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []any                  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default     any                    `json:"default,omitempty" yaml:"default,omitempty"`
	Nullable    bool                   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Properties  map[string]*SchemaInfo `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string               `json:"required,omitempty" yaml:"required,omitempty"`
	Items       *SchemaInfo            `json:"items,omitempty" yaml:"items,omitempty"`
	Ref         string                 `json:"-" yaml:"-"`
}

// RefPlaceholder returns the shallow stand-in for a shared schema reference.
func RefPlaceholder(ref string) *SchemaInfo {
	return &SchemaInfo{Type: SchemaTypeObject, Ref: ref}
}

// IsPlaceholder reports whether the schema stands in for an unexpanded reference.
func (s *SchemaInfo) IsPlaceholder() bool {
	return s != nil && s.Ref != ""
}

// HasProperty reports whether the object schema declares the named property.
func (s *SchemaInfo) HasProperty(name string) bool {
	if s == nil || s.Properties == nil {
		return false
	}
	_, ok := s.Properties[name]
	return ok
}
