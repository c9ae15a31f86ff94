package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/BaSui01/toolbridge/types"
)

// convertSchema flattens a kin-openapi schema into SchemaInfo. Component
// references are not followed; they degrade to an object placeholder.
func convertSchema(ref *openapi3.SchemaRef) *types.SchemaInfo {
	if ref == nil {
		return nil
	}
	if ref.Ref != "" {
		return types.RefPlaceholder(ref.Ref)
	}
	s := ref.Value
	if s == nil {
		return nil
	}

	info := &types.SchemaInfo{
		Format:      types.StringFormat(s.Format),
		Description: s.Description,
		Enum:        s.Enum,
		Default:     s.Default,
		Nullable:    s.Nullable,
	}
	if s.Type != nil {
		// OpenAPI 3.1 允许 type 数组，"null" 视为可空
		for _, t := range s.Type.Slice() {
			if t == "null" {
				info.Nullable = true
				continue
			}
			if info.Type == "" {
				info.Type = types.SchemaType(t)
			}
		}
	}

	if len(s.Properties) > 0 {
		info.Properties = make(map[string]*types.SchemaInfo, len(s.Properties))
		for name, prop := range s.Properties {
			info.Properties[name] = convertSchema(prop)
		}
		if info.Type == "" {
			info.Type = types.SchemaTypeObject
		}
	}
	if len(s.Required) > 0 {
		info.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		info.Items = convertSchema(s.Items)
		if info.Type == "" {
			info.Type = types.SchemaTypeArray
		}
	}
	return info
}
