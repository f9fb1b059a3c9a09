package classify

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadClassMap reads a flat {"label": index} JSON file exported alongside
// an ONNX multi-label tagger, giving ClassIndexMap its label→index mapping
// without baking model-specific label ordering into this package.
func LoadClassMap(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read class map %s: %w", path, err)
	}
	var classMap map[string]int
	if err := json.Unmarshal(data, &classMap); err != nil {
		return nil, fmt.Errorf("classify: parse class map %s: %w", path, err)
	}
	return classMap, nil
}
