package splittunnel

import (
	"io"
	"log/slog"
	"slices"
	"sync"
)

// mockCall records a single method invocation on a mock.
type mockCall struct {
	Method string
	Args   []interface{}
}

// mockRuleController is a test double for RuleController.
type mockRuleController struct {
	mu sync.Mutex

	calls []mockCall

	addErr    error
	deleteErr error
}

func (m *mockRuleController) AddExclusionRule(mark uint32, table, priority int) error {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: "AddExclusionRule", Args: []interface{}{mark, table, priority}})
	err := m.addErr
	m.mu.Unlock()
	return err
}

func (m *mockRuleController) DeleteExclusionRule(mark uint32, table, priority int) error {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: "DeleteExclusionRule", Args: []interface{}{mark, table, priority}})
	err := m.deleteErr
	m.mu.Unlock()
	return err
}

// callsFor returns all recorded calls for the given method name.
func (m *mockRuleController) callsFor(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []mockCall
	for _, c := range m.calls {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

// mockCgroup is an in-memory Cgroup.
type mockCgroup struct {
	mu      sync.Mutex
	ref     CgroupRef
	members []int
	added   []int
	removed []int
	addErr  error
}

func (m *mockCgroup) Ref() (CgroupRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref, nil
}

func (m *mockCgroup) Add(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, pid)
	m.members = append(m.members, pid)
	return nil
}

func (m *mockCgroup) Restore(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, pid)
	m.members = slices.DeleteFunc(m.members, func(p int) bool { return p == pid })
	return nil
}

func (m *mockCgroup) PIDs() ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.members), nil
}

func (m *mockCgroup) snapshot() (added, removed []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.added), slices.Clone(m.removed)
}

// mockProcesses returns a fixed process list.
type mockProcesses struct {
	mu    sync.Mutex
	procs []Process
}

func (m *mockProcesses) Processes() ([]Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.procs), nil
}

func (m *mockProcesses) set(procs ...Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs = procs
}

// mockMarker records applied mark rules.
type mockMarker struct {
	mu      sync.Mutex
	applied []MarkRule
	removes int
	err     error
}

func (m *mockMarker) Apply(rule MarkRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, rule)
	return nil
}

func (m *mockMarker) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	return nil
}

// testDeps holds the mocks behind a Driver.
type testDeps struct {
	rules  *mockRuleController
	cgroup *mockCgroup
	procs  *mockProcesses
	marker *mockMarker
}

func newTestDeps() *testDeps {
	return &testDeps{
		rules:  &mockRuleController{},
		cgroup: &mockCgroup{ref: CgroupRef{ID: 4242, Level: 1}},
		procs:  &mockProcesses{},
		marker: &mockMarker{},
	}
}

func (td *testDeps) deps() Deps {
	return Deps{Rules: td.rules, Cgroup: td.cgroup, Processes: td.procs, Marker: td.marker}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
