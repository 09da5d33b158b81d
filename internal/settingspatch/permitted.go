// Package settingspatch validates and merges a JSON patch document into the
// daemon's settings, restricted to a whitelisted subtree so that a frontend
// cannot use the patch surface to edit settings it has no business
// touching (custom DNS, account credentials, and so on).
package settingspatch

import "errors"

// recursionLimit caps the depth of validate/merge recursion, mirroring
// the original implementation's stack-abuse guard.
const recursionLimit = 15

// ErrRecursionLimit is returned when a patch or the current settings value
// nests deeper than recursionLimit.
var ErrRecursionLimit = errors.New("settingspatch: maximum JSON object depth reached")

// ErrUnknownKey is returned when a patch names a key outside the permitted
// subtree.
type ErrUnknownKey struct {
	Key string
}

func (e *ErrUnknownKey) Error() string {
	return "settingspatch: unknown or prohibited key: " + e.Key
}

// ErrInvalidValue is returned when a patch value has the wrong JSON shape
// for where it appears (e.g. a string where an object was expected).
type ErrInvalidValue struct {
	Reason string
}

func (e *ErrInvalidValue) Error() string {
	return "settingspatch: incorrect or missing value: " + e.Reason
}

// mergeStrategy selects how a permittedKey's value is combined with the
// current settings value during Merge.
type mergeStrategy int

const (
	// strategyReplace appends or replaces object keys; replaces any other
	// value outright. This is the default strategy.
	strategyReplace mergeStrategy = iota
	// strategyCustom defers to the permittedKey's custom merge function.
	strategyCustom
)

// mergeFunc combines an existing settings value (possibly nil, if the key
// did not previously exist) with the patch value for that key.
type mergeFunc func(current, patch any) (any, error)

// keyKind tags which shape of JSON value a permittedKey accepts.
type keyKind int

const (
	// kindObject accepts a JSON object whose keys are restricted to the
	// ones named in subkeys.
	kindObject keyKind = iota
	// kindArray accepts a JSON array whose elements all match element.
	kindArray
	// kindAny accepts any JSON value without further restriction.
	kindAny
)

// permittedKey is one node of the whitelist tree walked by Validate and
// Merge, re-expressing the original's PermittedKey/PermittedKeyValue pair
// as a single Go struct since Go has no tagged-union sum type.
type permittedKey struct {
	kind    keyKind
	subkeys map[string]*permittedKey // kindObject only
	element *permittedKey            // kindArray only
	merge   mergeStrategy
	custom  mergeFunc // strategyCustom only
}

func object(subkeys map[string]*permittedKey) *permittedKey {
	return &permittedKey{kind: kindObject, subkeys: subkeys}
}

func array(element *permittedKey) *permittedKey {
	return &permittedKey{kind: kindArray, element: element}
}

func any_() *permittedKey {
	return &permittedKey{kind: kindAny}
}

func (k *permittedKey) withCustomMerge(fn mergeFunc) *permittedKey {
	k.merge = strategyCustom
	k.custom = fn
	return k
}

// permittedSubkeys is the editable subtree: only relay_overrides[], keyed
// by hostname with a field-level merge of matching entries.
var permittedSubkeys = object(map[string]*permittedKey{
	"relay_overrides": array(object(map[string]*permittedKey{
		"hostname":      any_(),
		"ipv4_addr_in":  any_(),
		"ipv6_addr_in":  any_(),
	})).withCustomMerge(mergeRelayOverrides),
})
