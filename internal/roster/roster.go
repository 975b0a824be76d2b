// Package roster reads agent rosters used to seed the dispatch service.
//
//	agents:
//	  - id: alice
//	    name: Alice Martin
//	    email: alice@example.com
//	    role: SUPERVISOR
//	    capacity: 4
//	    online: true
//	    shift:
//	      start: "09:00"
//	      end: "17:00"
//	      weekdays: [1, 2, 3, 4, 5]
//	      timezone: Europe/Berlin
package roster

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/shift"
	"gopkg.in/yaml.v3"
)

type File struct {
	Agents []Agent `yaml:"agents"`
}

type Agent struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	Capacity  int    `yaml:"capacity"`
	Online    bool   `yaml:"online"`
	Available *bool  `yaml:"available"`
	Shift     *Shift `yaml:"shift"`
}

type Shift struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Weekdays []int  `yaml:"weekdays"`
	Timezone string `yaml:"timezone"`
}

// Load reads and converts the roster at path.
func Load(path string) ([]dispatch.NewAgent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a roster, rejecting unknown keys, and converts each entry
// to an agent registration. Shifts are validated here so a bad roster
// fails before anything is written.
func Parse(r io.Reader) ([]dispatch.NewAgent, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("roster: decode: %w", err)
	}
	out := make([]dispatch.NewAgent, 0, len(f.Agents))
	for i, a := range f.Agents {
		na := dispatch.NewAgent{
			ID:          a.ID,
			Name:        a.Name,
			Email:       a.Email,
			Role:        model.AgentRole(a.Role),
			Capacity:    a.Capacity,
			IsOnline:    a.Online,
			IsAvailable: a.Available == nil || *a.Available,
		}
		if a.Shift != nil {
			s, err := shift.Parse(a.Shift.Start, a.Shift.End, a.Shift.Weekdays, a.Shift.Timezone)
			if err != nil {
				return nil, fmt.Errorf("roster: agent %d (%s): %w", i+1, a.Email, err)
			}
			na.Shift = s
		}
		out = append(out, na)
	}
	return out, nil
}
