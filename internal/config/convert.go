package config

import (
	"fmt"

	"github.com/danmuck/dataplex/internal/protocol"
)

// FieldType resolves the configured wire type name.
func (f FieldConfig) FieldType() (protocol.FieldType, error) {
	t, ok := protocol.LookupType(f.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %q", protocol.ErrUnknownType, f.Type)
	}
	return t, nil
}
