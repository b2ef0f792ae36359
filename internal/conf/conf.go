// Package conf loads and validates meshtun's YAML configuration.
package conf

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// Conf is the top-level configuration for a meshtun process.
type Conf struct {
	Role      string  `yaml:"role"`
	Transport string  `yaml:"transport"`
	Log       Log     `yaml:"log"`
	Listen    Listen  `yaml:"listen"`
	Connect   Connect `yaml:"connect"`
	Kcp       Kcp     `yaml:"kcp"`
}

var validRoles = []string{"listen", "connect"}
var validTransports = []string{"udp", "kcp"}

// LoadFromFile reads, defaults, and validates a YAML config file.
func LoadFromFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Conf
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &c, err
	}

	if !slices.Contains(validRoles, c.Role) {
		return nil, fmt.Errorf("role must be one of: %v", validRoles)
	}
	if c.Transport != "" && !slices.Contains(validTransports, c.Transport) {
		return nil, fmt.Errorf("transport must be one of: %v", validTransports)
	}

	if err := c.Finalize(); err != nil {
		return &c, err
	}

	return &c, nil
}

// Finalize applies role-dependent defaults and validates the log, kcp and
// role sub-configs. Role and Transport themselves are checked only by
// LoadFromFile. Call it on any Conf built programmatically (e.g. from CLI
// flags) instead of via LoadFromFile.
func (c *Conf) Finalize() error {
	c.setDefaults()
	return c.validate()
}

func (c *Conf) setDefaults() {
	if c.Transport == "" {
		c.Transport = "udp"
	}
	c.Log.setDefaults()
	c.Kcp.setDefaults()
	if c.Role == "listen" {
		c.Listen.setDefaults()
	} else {
		c.Connect.setDefaults()
	}
}

func (c *Conf) validate() error {
	var allErrors []error

	allErrors = append(allErrors, c.Log.validate()...)
	allErrors = append(allErrors, c.Kcp.validate()...)
	if c.Role == "listen" {
		allErrors = append(allErrors, c.Listen.validate()...)
	} else {
		allErrors = append(allErrors, c.Connect.validate()...)
	}

	return writeErr(allErrors)
}

func writeErr(allErrors []error) error {
	if len(allErrors) > 0 {
		var messages []string
		for _, err := range allErrors {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}
