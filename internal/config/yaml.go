package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAML is a kong configuration loader. A flag such as --forecast-url is
// looked up as forecast_url, forecast-url or nested as forecast: {url: ...}.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		return lookup(values, flag.Name), nil
	}
	return f, nil
}

func lookup(values map[string]any, name string) any {
	if v, ok := values[name]; ok {
		return v
	}
	if v, ok := values[strings.ReplaceAll(name, "-", "_")]; ok {
		return v
	}
	parts := strings.SplitN(name, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	nested, ok := values[parts[0]].(map[string]any)
	if !ok {
		return nil
	}
	return lookup(nested, parts[1])
}
