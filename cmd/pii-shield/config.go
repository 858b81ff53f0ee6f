package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/raaihank/pii-shield/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the configuration file,
.env, the environment and command-line overrides have been applied.
The output is valid YAML and can be used as a starting config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out, err := encodeConfig(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}

			w := cmd.OutOrStdout()
			if source := config.FileUsed(); source != "" {
				fmt.Fprintf(w, "# loaded from %s\n", source)
			}
			_, err = w.Write(out)
			return err
		},
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// encodeConfig renders cfg as YAML with durations written the way the
// sample config file writes them (30m, 54s)
func encodeConfig(cfg *config.Config) ([]byte, error) {
	node, err := configNode(reflect.ValueOf(*cfg))
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(node)
}

func configNode(v reflect.Value) (*yaml.Node, error) {
	switch {
	case v.Type() == durationType:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: formatDuration(time.Duration(v.Int()))}, nil

	case v.Kind() == reflect.Struct:
		mapping := &yaml.Node{Kind: yaml.MappingNode}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			key := strings.Split(field.Tag.Get("yaml"), ",")[0]
			if !field.IsExported() || key == "" || key == "-" {
				continue
			}
			value, err := configNode(v.Field(i))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				value,
			)
		}
		return mapping, nil
	}

	node := &yaml.Node{}
	if err := node.Encode(v.Interface()); err != nil {
		return nil, err
	}
	return node, nil
}

// formatDuration drops zero trailing units: 30m0s becomes 30m, 1h0m0s 1h
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
