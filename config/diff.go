package config

import (
	"reflect"
	"strings"
)

// diffEvent compares two configs of the same struct type field by field and
// reports changed fields by their config key.
func diffEvent(old, new any) Event {
	evt := Event{ChangedKeys: []string{}, OldConfig: old, NewConfig: new}
	if old == nil || new == nil {
		return evt
	}

	ov, nv := reflect.ValueOf(old), reflect.ValueOf(new)
	if ov.Kind() == reflect.Ptr {
		ov = ov.Elem()
	}
	if nv.Kind() == reflect.Ptr {
		nv = nv.Elem()
	}
	if ov.Kind() != reflect.Struct || ov.Type() != nv.Type() {
		return evt
	}

	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			evt.ChangedKeys = append(evt.ChangedKeys, configKey(f))
		}
	}
	return evt
}

func configKey(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("config"), ",")
	if tag == "" || tag == "-" {
		return f.Name
	}
	return tag
}
