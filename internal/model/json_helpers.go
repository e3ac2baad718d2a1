package model

import (
	"encoding/json"
	"fmt"
)

func marshalQuoted(s string) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalQuoted(data []byte, out *string) error {
	return json.Unmarshal(data, out)
}

func unknownValueError(typeName, value string) error {
	return fmt.Errorf("model: unknown %s %q", typeName, value)
}

// UnmarshalJSON accepts either a bare string (the bundle reference) or an
// object with manifest_hash and/or url fields, per spec.md §4.6's
// "string-or-{manifest_hash,url}" contract.
func (r *RaucInstallRequest) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		r.Bundle = asString
		return nil
	}
	type wire RaucInstallRequest
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = RaucInstallRequest(w)
	return nil
}

func (r RaucInstallRequest) MarshalJSON() ([]byte, error) {
	if r.Bundle != "" && r.ManifestHash == "" && r.URL == "" {
		return json.Marshal(r.Bundle)
	}
	type wire RaucInstallRequest
	return json.Marshal(wire(r))
}
