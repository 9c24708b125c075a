// Package rotation routes pipeline attempts across an ordered set of
// (credential, model) pairs and persists where the next invocation starts.
package rotation

import (
	"errors"
	"fmt"
	"strings"

	"fuelagent/llm"

	"gopkg.in/yaml.v3"
)

// Entry is one credential and the models to try with it, in order.
type Entry struct {
	Credential llm.Credential
	Models     []string
}

// Plan is the fixed enumeration order for one deployment.
type Plan struct {
	Entries []Entry
}

type planFile struct {
	Credentials []struct {
		Name   string   `yaml:"name"`
		Env    string   `yaml:"env"`
		Models []string `yaml:"models"`
	} `yaml:"credentials"`
}

// ParsePlan reads a YAML plan. Each credential names the environment
// variable holding its secret, either through env or, when env is empty,
// through name itself:
//
//	credentials:
//	  - name: primary
//	    env: GOOGLE_API_KEY
//	    models: [gemini-2.5-flash, gemini-2.0-flash]
func ParsePlan(data []byte, lookup func(string) string) (Plan, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Plan{}, fmt.Errorf("failed to parse rotation plan: %w", err)
	}

	var p Plan
	for _, c := range pf.Credentials {
		env := c.Env
		if env == "" {
			env = c.Name
		}
		name := c.Name
		if name == "" {
			name = env
		}
		p.Entries = append(p.Entries, Entry{
			Credential: llm.Credential{Name: name, Secret: lookup(env)},
			Models:     trimAll(c.Models),
		})
	}
	return p, p.Validate()
}

// PlanFromLists gives every credential the same model list.
func PlanFromLists(credentials, models []string, lookup func(string) string) (Plan, error) {
	models = trimAll(models)

	var p Plan
	for _, name := range trimAll(credentials) {
		p.Entries = append(p.Entries, Entry{
			Credential: llm.Credential{Name: name, Secret: lookup(name)},
			Models:     append([]string(nil), models...),
		})
	}
	return p, p.Validate()
}

// Validate rejects plans with no credentials or a credential with no models.
func (p Plan) Validate() error {
	if len(p.Entries) == 0 {
		return errors.New("rotation plan has no credentials")
	}
	seen := make(map[string]bool, len(p.Entries))
	for _, e := range p.Entries {
		if e.Credential.Name == "" {
			return errors.New("rotation plan has a credential without a name")
		}
		if seen[e.Credential.Name] {
			return fmt.Errorf("rotation plan lists credential %q twice", e.Credential.Name)
		}
		seen[e.Credential.Name] = true
		if len(e.Models) == 0 {
			return fmt.Errorf("credential %q has no models", e.Credential.Name)
		}
	}
	return nil
}

// Size is the number of credentials, the modulus of the rotation flag.
func (p Plan) Size() int { return len(p.Entries) }

// Permutations enumerates every (credential, model) pair exactly once:
// all models of the credential at start, then the next credential,
// wrapping around.
func (p Plan) Permutations(start int) []llm.Target {
	n := len(p.Entries)
	if n == 0 {
		return nil
	}
	start = ((start % n) + n) % n

	var out []llm.Target
	for i := 0; i < n; i++ {
		e := p.Entries[(start+i)%n]
		for _, m := range e.Models {
			out = append(out, llm.Target{Credential: e.Credential, Model: m})
		}
	}
	return out
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
