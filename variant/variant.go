// Package variant holds the game-setup data a map variant contributes:
// the powers, their starting units and centres, and the neutral centres.
// Variants are TOML files; the standard map ships embedded.
package variant

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed standard.toml
var standardTOML []byte

// PowerSetup is one power's starting position. Units are in short
// notation ("A BUD", "F STP/NC").
type PowerSetup struct {
	Name    string   `toml:"name"`
	Centres []string `toml:"centres"`
	Units   []string `toml:"units"`
}

// Variant is a complete game setup.
type Variant struct {
	Name           string       `toml:"name"`
	StartPhase     string       `toml:"start_phase"`
	SoloCentres    int          `toml:"solo_centres"`
	NeutralCentres []string     `toml:"neutral_centres"`
	Powers         []PowerSetup `toml:"powers"`
}

// Standard returns the embedded standard-map variant.
func Standard() *Variant {
	v, err := parse(standardTOML)
	if err != nil {
		// The embedded file is part of the build; failing to parse it is a
		// packaging error.
		panic(err)
	}

	return v
}

// Load reads a variant definition from a TOML file.
func Load(path string) (*Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variant %s: %w", path, err)
	}

	return parse(data)
}

func parse(data []byte) (*Variant, error) {
	var v Variant

	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse variant: %w", err)
	}

	if v.Name == "" || len(v.Powers) == 0 {
		return nil, fmt.Errorf("variant %q is missing a name or powers", v.Name)
	}

	return &v, nil
}

// PowerNames lists the powers in file order.
func (v *Variant) PowerNames() []string {
	names := make([]string, 0, len(v.Powers))
	for _, p := range v.Powers {
		names = append(names, p.Name)
	}

	return names
}

// Power returns one power's setup.
func (v *Variant) Power(name string) (PowerSetup, bool) {
	for _, p := range v.Powers {
		if p.Name == name {
			return p, true
		}
	}

	return PowerSetup{}, false
}
