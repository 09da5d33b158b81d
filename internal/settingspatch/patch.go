package settingspatch

import (
	"encoding/json"
	"fmt"
)

// Validate checks that patch contains only keys and shapes permitted by
// the whitelist tree, without touching the current settings. It is the
// first of the two-step procedure the control-plane RPC surface must
// follow before calling Merge.
func Validate(patch json.RawMessage) error {
	var value any
	if err := json.Unmarshal(patch, &value); err != nil {
		return fmt.Errorf("settingspatch: parse patch: %w", err)
	}
	return validateValue(permittedSubkeys, value, 0)
}

// Merge applies patch onto current, returning the merged document. Callers
// must call Validate first; Merge does not re-validate prohibited keys
// beyond what its recursive descent naturally rejects.
func Merge(current, patch json.RawMessage) (json.RawMessage, error) {
	var currentValue any
	if len(current) > 0 {
		if err := json.Unmarshal(current, &currentValue); err != nil {
			return nil, fmt.Errorf("settingspatch: parse current settings: %w", err)
		}
	}
	var patchValue any
	if err := json.Unmarshal(patch, &patchValue); err != nil {
		return nil, fmt.Errorf("settingspatch: parse patch: %w", err)
	}

	merged, err := mergeValue(permittedSubkeys, currentValue, patchValue, 0)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("settingspatch: marshal merged settings: %w", err)
	}
	return out, nil
}

func validateValue(key *permittedKey, value any, depth int) error {
	if depth >= recursionLimit {
		return ErrRecursionLimit
	}

	switch key.kind {
	case kindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return &ErrInvalidValue{Reason: "expected JSON object in patch"}
		}
		for k, v := range obj {
			sub, ok := key.subkeys[k]
			if !ok {
				return &ErrUnknownKey{Key: k}
			}
			if err := validateValue(sub, v, depth+1); err != nil {
				return err
			}
		}
		return nil
	case kindArray:
		arr, ok := value.([]any)
		if !ok {
			return &ErrInvalidValue{Reason: "expected JSON array in patch"}
		}
		for _, v := range arr {
			if err := validateValue(key.element, v, depth+1); err != nil {
				return err
			}
		}
		return nil
	default: // kindAny
		return nil
	}
}

// mergeValue combines current (nil if absent) with patch according to
// key's merge strategy, recursing for kindObject per matching subkey.
func mergeValue(key *permittedKey, current, patch any, depth int) (any, error) {
	if depth >= recursionLimit {
		return nil, ErrRecursionLimit
	}

	if key.merge == strategyCustom {
		return key.custom(current, patch)
	}

	currentObj, currentIsObj := current.(map[string]any)
	patchObj, patchIsObj := patch.(map[string]any)
	if key.kind == kindObject && currentIsObj && patchIsObj {
		if currentObj == nil {
			currentObj = make(map[string]any)
		}
		for k, subPatch := range patchObj {
			sub, ok := key.subkeys[k]
			if !ok {
				return nil, &ErrUnknownKey{Key: k}
			}
			subCurrent := currentObj[k]
			merged, err := mergeValue(sub, subCurrent, subPatch, depth+1)
			if err != nil {
				return nil, err
			}
			currentObj[k] = merged
		}
		return currentObj, nil
	}

	// Replace strategy for anything that isn't an object-onto-object merge:
	// the patch value wins outright.
	return patch, nil
}

// mergeRelayOverrides keys the relay_overrides array by hostname: entries
// with a matching hostname are field-merged (patch fields win), entries
// with no match are appended. Ported from the original's
// merge_relay_overrides.
func mergeRelayOverrides(current, patch any) (any, error) {
	if current == nil {
		return patch, nil
	}

	patchArr, ok := patch.([]any)
	if !ok {
		return nil, &ErrInvalidValue{Reason: "relay overrides must be array"}
	}
	currentArr, ok := current.([]any)
	if !ok {
		return nil, &ErrInvalidValue{Reason: "existing overrides should be an array"}
	}

	merged := make([]any, len(currentArr))
	copy(merged, currentArr)

	for _, patchEntry := range patchArr {
		patchObj, ok := patchEntry.(map[string]any)
		if !ok {
			return nil, &ErrInvalidValue{Reason: "override entry"}
		}
		hostname, ok := patchObj["hostname"].(string)
		if !ok {
			return nil, &ErrInvalidValue{Reason: "hostname"}
		}

		matchIdx := -1
		for i, existing := range merged {
			existingObj, ok := existing.(map[string]any)
			if !ok {
				continue
			}
			if h, _ := existingObj["hostname"].(string); h == hostname {
				matchIdx = i
				break
			}
		}

		if matchIdx < 0 {
			merged = append(merged, patchEntry)
			continue
		}

		existingObj, ok := merged[matchIdx].(map[string]any)
		if !ok {
			return nil, &ErrInvalidValue{Reason: "all override entries must be objects"}
		}
		for k, v := range patchObj {
			existingObj[k] = v
		}
		merged[matchIdx] = existingObj
	}

	out := make([]any, len(merged))
	copy(out, merged)
	return out, nil
}
