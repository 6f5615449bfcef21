package protocol

import (
	"encoding/json"
	"regexp"

	"github.com/kbessonov/roomhub/pkg/chaterr"
	"github.com/tidwall/gjson"
)

// Filter validates the shape of an event payload before its handler runs.
type Filter interface {
	Check(data json.RawMessage) error
}

// StringFilter accepts any JSON string payload.
type StringFilter struct{}

func (StringFilter) Check(data json.RawMessage) error {
	if gjson.ParseBytes(data).Type != gjson.String {
		return chaterr.New(chaterr.Protocol, "payload must be a string")
	}
	return nil
}

// RegexpFilter accepts a JSON string matching the given pattern.
type RegexpFilter struct {
	Pattern *regexp.Regexp
}

func (f RegexpFilter) Check(data json.RawMessage) error {
	v := gjson.ParseBytes(data)
	if v.Type != gjson.String {
		return chaterr.New(chaterr.Protocol, "payload must be a string")
	}
	if !f.Pattern.MatchString(v.String()) {
		return chaterr.Newf(chaterr.Protocol, "payload does not match %s", f.Pattern)
	}
	return nil
}

// NumberFilter accepts a JSON number within [Min, Max].
type NumberFilter struct {
	Min, Max float64
}

func (f NumberFilter) Check(data json.RawMessage) error {
	v := gjson.ParseBytes(data)
	if v.Type != gjson.Number {
		return chaterr.New(chaterr.Protocol, "payload must be a number")
	}
	if n := v.Float(); n < f.Min || n > f.Max {
		return chaterr.Newf(chaterr.Protocol, "payload out of range [%v, %v]", f.Min, f.Max)
	}
	return nil
}

// ObjectFilter accepts a JSON object whose fields each pass their own
// filter. Fields not listed are ignored; listed fields are required.
type ObjectFilter map[string]Filter

func (f ObjectFilter) Check(data json.RawMessage) error {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return chaterr.New(chaterr.Protocol, "payload must be an object")
	}
	for field, sub := range f {
		v := parsed.Get(field)
		if !v.Exists() {
			return chaterr.Newf(chaterr.Protocol, "payload missing field %q", field)
		}
		if err := sub.Check(json.RawMessage(v.Raw)); err != nil {
			return chaterr.Newf(chaterr.Protocol, "payload field %q: %v", field, err)
		}
	}
	return nil
}
