package document

import "reflect"

// operationKey is the JSON object key marking a partial-update value as an
// operation rather than a literal replacement.
const operationKey = "_operation"

// ApplyPartialUpdate merges updates into base (both plain decoded-JSON
// objects), applying the Increment/Decrement/Add/Remove/AddUnique
// operation vocabulary per field and assigning literal values otherwise.
// objectID/_id entries in updates are ignored; callers control identity
// separately. base is mutated and returned.
func ApplyPartialUpdate(base map[string]any, updates map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any)
	}
	for field, value := range updates {
		if isReservedIDKey(field) {
			continue
		}
		opObj, isOp := asOperation(value)
		if !isOp {
			base[field] = value
			continue
		}
		applyOperation(base, field, opObj)
	}
	return base
}

func asOperation(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	op, ok := obj[operationKey]
	if !ok {
		return nil, false
	}
	_, ok = op.(string)
	return obj, ok
}

func applyOperation(base map[string]any, field string, opObj map[string]any) {
	op, _ := opObj[operationKey].(string)
	switch op {
	case "Increment", "IncrementFrom", "IncrementSet":
		applyDelta(base, field, opObj, 1)
	case "Decrement", "DecrementFrom", "DecrementSet":
		applyDelta(base, field, opObj, -1)
	case "Add":
		applyAdd(base, field, opObj, false)
	case "AddUnique":
		applyAdd(base, field, opObj, true)
	case "Remove":
		applyRemove(base, field, opObj)
	default:
		// Unknown operation: skip.
	}
}

func operandValue(opObj map[string]any) (float64, bool) {
	for k, v := range opObj {
		if k == operationKey {
			continue
		}
		if n, ok := v.(float64); ok {
			return n, true
		}
	}
	return 0, false
}

func applyDelta(base map[string]any, field string, opObj map[string]any, sign float64) {
	delta, ok := operandValue(opObj)
	if !ok {
		return
	}
	delta *= sign

	existing, present := base[field]
	if !present {
		// toFieldValue later classifies whole-valued floats as Integer,
		// so no separate Int/Float branch is needed here.
		base[field] = delta
		return
	}

	// Stored documents render whole numbers as int64 (Document.ToJSON), while
	// freshly decoded JSON carries float64.
	var cur float64
	switch v := existing.(type) {
	case float64:
		cur = v
	case int64:
		cur = float64(v)
	default:
		return
	}
	base[field] = cur + delta
}

func applyAdd(base map[string]any, field string, opObj map[string]any, unique bool) {
	var newValue any
	for k, v := range opObj {
		if k != operationKey {
			newValue = v
			break
		}
	}

	existing, present := base[field]
	if !present {
		base[field] = []any{newValue}
		return
	}

	arr, ok := existing.([]any)
	if !ok {
		base[field] = []any{existing, newValue}
		return
	}

	if unique {
		for _, item := range arr {
			if jsonEqual(item, newValue) {
				return
			}
		}
	}
	base[field] = append(arr, newValue)
}

func applyRemove(base map[string]any, field string, opObj map[string]any) {
	var target any
	for k, v := range opObj {
		if k != operationKey {
			target = v
			break
		}
	}

	existing, present := base[field]
	if !present {
		return
	}
	arr, ok := existing.([]any)
	if !ok {
		return
	}

	filtered := arr[:0]
	for _, item := range arr {
		if !jsonEqual(item, target) {
			filtered = append(filtered, item)
		}
	}
	base[field] = filtered
}

func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
