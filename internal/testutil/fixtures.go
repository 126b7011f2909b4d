package testutil

import (
	"testing"

	"github.com/dadhi/dryioc"
	"github.com/stretchr/testify/require"
)

// BasicModule registers a singleton logger, a singleton database and a transient
// test service.
var BasicModule = dryioc.NewModule("basic",
	dryioc.Add[TestLogger](NewTestLogger, dryioc.WithReuse(dryioc.Singleton)),
	dryioc.Add[TestDatabase](NewTestDatabase, dryioc.WithReuse(dryioc.Singleton)),
	dryioc.AddTransient(NewTestService),
)

// NewContainer creates a container with the modules applied and closes it when the
// test ends.
func NewContainer(t *testing.T, modules ...dryioc.ModuleOption) *dryioc.Container {
	t.Helper()
	return NewContainerWith(t, nil, modules...)
}

// NewContainerWith is NewContainer with custom container options.
func NewContainerWith(t *testing.T, opts []dryioc.Option, modules ...dryioc.ModuleOption) *dryioc.Container {
	t.Helper()
	c := dryioc.New(opts...)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.AddModules(modules...))
	return c
}

// TestScenario describes a table-driven test case
type TestScenario struct {
	Name  string
	Setup func(t *testing.T, c *dryioc.Container)
	Test  func(t *testing.T, c *dryioc.Container)
}

// RunTestScenarios runs each scenario against a fresh container
func RunTestScenarios(t *testing.T, scenarios []TestScenario) {
	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			c := NewContainer(t)
			if scenario.Setup != nil {
				scenario.Setup(t, c)
			}
			scenario.Test(t, c)
		})
	}
}
