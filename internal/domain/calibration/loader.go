package calibration

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// fileSchema is the on-disk YAML shape:
//
//	curves:
//	  reducto:
//	    TABLE:
//	      points:
//	        - {raw: 0.0, calibrated: 0.0}
//	        - {raw: 1.0, calibrated: 0.95}
type fileSchema struct {
	Curves map[string]map[string]Curve `yaml:"curves"`
}

// LoadFromFile reads a calibration table from a YAML file. A missing file is
// not an error: fusion falls back to identity calibration, which the caller
// logs.
func LoadFromFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calibration file %s: %w", path, err)
	}

	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calibration file %s: %w", path, err)
	}

	curves := make(map[string]map[entity.Type]Curve, len(f.Curves))
	for prov, byType := range f.Curves {
		curves[prov] = make(map[entity.Type]Curve, len(byType))
		for name, curve := range byType {
			et := entity.Type(name)
			if !et.Valid() {
				return nil, fmt.Errorf("calibration file %s: %w: %q", path, entity.ErrInvalidType, name)
			}
			curves[prov][et] = curve
		}
	}

	t, err := NewTable(curves)
	if err != nil {
		return nil, fmt.Errorf("validate calibration file %s: %w", path, err)
	}
	return t, nil
}
