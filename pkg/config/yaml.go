package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
)

// SaveAsYaml writes the configuration to ConfigPath, with the comment tags of
// the fields as head comments. It creates the config directory if needed.
func (c *Config) SaveAsYaml() error {
	configPath := c.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("could not create directory %q: %w", filepath.Dir(configPath), err)
	}

	comments := yaml.CommentMap{}
	collectComments(reflect.TypeOf(*c), "$", comments)

	out, err := yaml.MarshalWithOptions(c, yaml.WithComment(comments), yaml.Indent(2))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	return nil
}

func collectComments(t reflect.Type, prefix string, comments yaml.CommentMap) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		path := prefix + "." + name
		if comment := field.Tag.Get("comment"); comment != "" {
			comments[path] = []*yaml.Comment{yaml.HeadComment(" " + comment)}
		}
		if _, ok := reflect.New(field.Type).Interface().(interface{ MarshalText() ([]byte, error) }); ok {
			continue
		}
		collectComments(field.Type, path, comments)
	}
}
