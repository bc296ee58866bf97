package helper

import (
	"os"

	"gopkg.in/yaml.v3"
)

func WriteYAMLToFile(name string, data interface{}, perm os.FileMode) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}

	return os.WriteFile(name, out, perm)
}

func ReadYAMLFile(name string, data interface{}) error {
	in, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(in, data)
}
