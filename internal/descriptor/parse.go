package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// pointerRootKey is the metadata standard key every pointer document nests under.
const pointerRootKey = "721"

// reservedPointerKeys are sibling metadata fields of the policy object.
var reservedPointerKeys = map[string]struct{}{
	"copyright": {},
	"publisher": {},
	"version":   {},
	"extension": {},
}

// ParsePointer decodes and validates a pointer document. policyID selects
// the policy object under "721"; when empty the single non-reserved object
// key is used.
func ParsePointer(data []byte, policyID string) (*PointerDescriptor, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode pointer document: %w", err)
	}
	rawTop, ok := root[pointerRootKey]
	if !ok {
		return nil, fmt.Errorf("missing top-level %q key", pointerRootKey)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(rawTop, &top); err != nil {
		return nil, fmt.Errorf("decode %q object: %w", pointerRootKey, err)
	}

	policy, err := selectPolicy(top, strings.TrimSpace(policyID))
	if err != nil {
		return nil, err
	}
	var assets map[string]json.RawMessage
	if err := json.Unmarshal(top[policy], &assets); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", policy, err)
	}
	if len(assets) != 1 {
		return nil, fmt.Errorf("policy %s: expected exactly one asset, found %d", policy, len(assets))
	}
	var assetID string
	var rawAsset json.RawMessage
	for id, raw := range assets {
		assetID, rawAsset = id, raw
	}

	if err := validateDocument(rawAsset, func(s *schemas) error { return s.pointer.Validate(decodeAny(rawAsset)) }); err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}

	var asset struct {
		Name        string               `json:"name"`
		Image       string               `json:"image"`
		Description any                  `json:"description"`
		Resource    []ResourceDescriptor `json:"resource"`
	}
	if err := json.Unmarshal(rawAsset, &asset); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", assetID, err)
	}
	return &PointerDescriptor{
		PolicyID:    policy,
		AssetID:     assetID,
		Name:        asset.Name,
		Image:       asset.Image,
		Description: asset.Description,
		Resources:   asset.Resource,
		Raw:         data,
	}, nil
}

// ParseExtended decodes and validates an extended metadata document. Every
// leaf resource must map to a canonical filename.
func ParseExtended(data []byte) (*ExtendedMetadata, error) {
	if err := validateDocument(data, func(s *schemas) error { return s.extended.Validate(decodeAny(data)) }); err != nil {
		return nil, err
	}
	var doc struct {
		Details struct {
			Name     string               `json:"name"`
			Resource []ResourceDescriptor `json:"resource"`
		} `json:"details"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode extended metadata: %w", err)
	}
	for _, res := range doc.Details.Resource {
		if _, err := res.Filename(); err != nil {
			return nil, err
		}
	}
	return &ExtendedMetadata{
		Name:      doc.Details.Name,
		Resources: doc.Details.Resource,
		Raw:       data,
	}, nil
}

func selectPolicy(top map[string]json.RawMessage, policyID string) (string, error) {
	if policyID != "" {
		if _, ok := top[policyID]; !ok {
			return "", fmt.Errorf("policy %s not present under %q", policyID, pointerRootKey)
		}
		return policyID, nil
	}
	var candidates []string
	for key, raw := range top {
		if _, reserved := reservedPointerKeys[key]; reserved {
			continue
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
			candidates = append(candidates, key)
		}
	}
	sort.Strings(candidates)
	if len(candidates) != 1 {
		return "", fmt.Errorf("cannot infer policy id: found %d candidate objects %v (set descriptor.policy_id)", len(candidates), candidates)
	}
	return candidates[0], nil
}

func validateDocument(data []byte, validate func(*schemas) error) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("document is not valid JSON")
	}
	if err := validate(s); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func decodeAny(data []byte) any {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil
	}
	return v
}
