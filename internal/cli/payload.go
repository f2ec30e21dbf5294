package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/storeerr"
)

// parsePayload decodes one YAML or JSON mapping into a payload.
func parsePayload(typ, text string) (payload.Object, error) {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(text), &m); err != nil {
		return nil, storeerr.InvalidPayload(typ, "decode payload %q: %v", text, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	obj, err := payload.ObjectFromMap(m)
	if err != nil {
		return nil, storeerr.InvalidPayload(typ, "payload %q: %v", text, err)
	}
	return obj, nil
}

// readPayloadFile decodes a YAML file holding either one mapping or a
// sequence of mappings.
func readPayloadFile(typ, path string) ([]payload.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, storeerr.InvalidPayload(typ, "decode %s: %v", path, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var maps []map[string]any
	switch doc := node.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&maps); err != nil {
			return nil, storeerr.InvalidPayload(typ, "decode %s: %v", path, err)
		}
	case yaml.MappingNode:
		var m map[string]any
		if err := doc.Decode(&m); err != nil {
			return nil, storeerr.InvalidPayload(typ, "decode %s: %v", path, err)
		}
		maps = append(maps, m)
	default:
		return nil, storeerr.InvalidPayload(typ, "%s: expected a mapping or a list of mappings", path)
	}

	out := make([]payload.Object, 0, len(maps))
	for i, m := range maps {
		obj, err := payload.ObjectFromMap(m)
		if err != nil {
			return nil, storeerr.InvalidPayload(typ, "%s[%d]: %v", path, i, err)
		}
		out = append(out, obj)
	}
	return out, nil
}
