package model

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of a schema field. "email" is a string
// constrained to an address shape; assistant output validation enforces it.
type FieldType string

const (
	TypeString FieldType = "str"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeEmail  FieldType = "email"
	TypeList   FieldType = "list"
)

// ValidFieldType reports whether the parser should accept the type name.
func ValidFieldType(name string) bool {
	switch FieldType(name) {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeEmail, TypeList:
		return true
	}
	return false
}

// SchemaField is one declared field of a record schema.
type SchemaField struct {
	Name string
	Type FieldType
}

// Schema describes the shape of a structured record. Scripts declare
// schemas purely as output-shape descriptors for the assistant call;
// they carry no executable logic.
type Schema struct {
	Name   string
	Fields []SchemaField
}

// Field returns the declared field with the given name, or nil.
func (s *Schema) Field(name string) *SchemaField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Describe renders the schema for inclusion in an assistant prompt.
func (s *Schema) Describe() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%q: %s", f.Name, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// EmailShaped reports whether the string looks like a single address.
// Deliberately loose: one "@", a dot in the domain, no spaces.
func EmailShaped(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	at := strings.Count(s, "@")
	if at != 1 {
		return false
	}
	idx := strings.Index(s, "@")
	local, domain := s[:idx], s[idx+1:]
	return local != "" && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
