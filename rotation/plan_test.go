package rotation

import (
	"testing"

	"fuelagent/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParsePlan(t *testing.T) {
	data := []byte(`
credentials:
  - name: primary
    env: GOOGLE_API_KEY
    models: [gemini-2.5-flash, " gemini-2.0-flash "]
  - name: GOOGLE_API_KEY_2
    models: [gemini-2.5-flash]
`)
	p, err := ParsePlan(data, env(map[string]string{"GOOGLE_API_KEY": "a", "GOOGLE_API_KEY_2": "b"}))
	require.NoError(t, err)
	require.Len(t, p.Entries, 2)

	assert.Equal(t, llm.Credential{Name: "primary", Secret: "a"}, p.Entries[0].Credential)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash"}, p.Entries[0].Models)
	assert.Equal(t, llm.Credential{Name: "GOOGLE_API_KEY_2", Secret: "b"}, p.Entries[1].Credential)
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "invalid yaml", data: "credentials: [", want: "failed to parse rotation plan"},
		{name: "empty", data: "credentials: []", want: "no credentials"},
		{name: "no models", data: "credentials:\n  - name: A\n", want: `credential "A" has no models`},
		{name: "duplicate", data: "credentials:\n  - name: A\n    models: [m]\n  - name: A\n    models: [m]\n", want: "twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data), env(nil))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPlanFromLists(t *testing.T) {
	p, err := PlanFromLists([]string{"K1", " ", "K2"}, []string{"m1", "m2"}, env(map[string]string{"K1": "s1"}))
	require.NoError(t, err)
	require.Equal(t, 2, p.Size())
	assert.Equal(t, "s1", p.Entries[0].Credential.Secret)
	assert.Equal(t, []string{"m1", "m2"}, p.Entries[1].Models)

	_, err = PlanFromLists(nil, []string{"m"}, env(nil))
	assert.Error(t, err)
	_, err = PlanFromLists([]string{"K"}, nil, env(nil))
	assert.Error(t, err)
}

func TestPermutations(t *testing.T) {
	p := Plan{Entries: []Entry{
		{Credential: llm.Credential{Name: "A"}, Models: []string{"m1", "m2"}},
		{Credential: llm.Credential{Name: "B"}, Models: []string{"m1"}},
		{Credential: llm.Credential{Name: "C"}, Models: []string{"m3", "m4"}},
	}}

	names := func(ts []llm.Target) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.String())
		}
		return out
	}

	tests := []struct {
		start int
		want  []string
	}{
		{0, []string{"A/m1", "A/m2", "B/m1", "C/m3", "C/m4"}},
		{1, []string{"B/m1", "C/m3", "C/m4", "A/m1", "A/m2"}},
		{2, []string{"C/m3", "C/m4", "A/m1", "A/m2", "B/m1"}},
		{4, []string{"B/m1", "C/m3", "C/m4", "A/m1", "A/m2"}},
		{-1, []string{"C/m3", "C/m4", "A/m1", "A/m2", "B/m1"}},
	}
	for _, tt := range tests {
		got := names(p.Permutations(tt.start))
		assert.Equal(t, tt.want, got, "start=%d", tt.start)
	}

	for start := 0; start < 3; start++ {
		seen := map[string]bool{}
		for _, n := range names(p.Permutations(start)) {
			assert.False(t, seen[n], "permutation %s visited twice", n)
			seen[n] = true
		}
		assert.Len(t, seen, 5)
	}

	assert.Nil(t, Plan{}.Permutations(0))
}
