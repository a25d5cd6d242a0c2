package adapter

import (
	"encoding/json"
	"fmt"
	"os"
)

func removeFile(path string) error {
	return os.Remove(path)
}

// expandStepArgs decodes one sequence step's raw args object, running every
// string value through expandTemplate so "${steps.N.stdout}"-style
// references resolve against already-completed steps before the result is
// schema-validated and path-checked like any other call's arguments.
func expandStepArgs(raw json.RawMessage, prior []stepResult) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding sequence step args: %w", err)
	}
	for k, v := range decoded {
		s, ok := v.(string)
		if !ok {
			continue
		}
		expanded, err := expandTemplate(s, prior)
		if err != nil {
			return nil, err
		}
		decoded[k] = expanded
	}
	return decoded, nil
}
