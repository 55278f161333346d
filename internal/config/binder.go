package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// bindEnvs binds every leaf field of the struct type of iface, so that viper.Unmarshal sees env vars even for keys
// without a default. It returns the bound keys.
// https://github.com/spf13/viper/issues/188#issuecomment-399884438
func bindEnvs(iface any, parts ...string) []string {
	return bindType(reflect.TypeOf(iface), parts)
}

func bindType(t reflect.Type, parts []string) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("mapstructure")
		if !ok || tag == "" || tag == "-" {
			continue
		}
		path := append(append([]string(nil), parts...), tag)

		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			keys = append(keys, bindType(ft, path)...)
			continue
		}

		key := strings.Join(path, ".")
		_ = viper.BindEnv(key)
		keys = append(keys, key)
	}
	return keys
}
