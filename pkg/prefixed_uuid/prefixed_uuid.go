// Package prefixed_uuid builds identifiers of the form "<prefix>-<uuid>".
package prefixed_uuid //nolint:revive // var-naming: kept for import path stability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID is a UUID tagged with a short kind prefix such as "exg".
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New returns a random (v4) id with the given prefix.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// Parse reads "prefix-uuid". The prefix may not contain '-'.
func Parse(s string) (PrefixedUUID, error) {
	prefix, raw, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID %q", s)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID %q: %w", s, err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: id}, nil
}

func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

func (p PrefixedUUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PrefixedUUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
