package sysexec

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/siteup/siteup/interfaces"
)

// MockRunner mocks the CommandRunner interface
type MockRunner struct {
	mock.Mock
}

var _ interfaces.CommandRunner = (*MockRunner)(nil)

// Run mocks the Run method
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) error {
	callArgs := m.Called(ctx, name, args)
	return callArgs.Error(0)
}

// Output mocks the Output method
func (m *MockRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	callArgs := m.Called(ctx, name, args)
	if callArgs.Get(0) == nil {
		return nil, callArgs.Error(1)
	}
	return callArgs.Get(0).([]byte), callArgs.Error(1)
}

// LookPath mocks the LookPath method
func (m *MockRunner) LookPath(name string) (string, error) {
	callArgs := m.Called(name)
	return callArgs.String(0), callArgs.Error(1)
}

// CommandLine renders a recorded mock call as "name arg1 arg2" for
// call-order assertions in tests.
func CommandLine(call mock.Call) string {
	if call.Method != "Run" && call.Method != "Output" {
		return call.Method
	}
	line := call.Arguments.String(1)
	for _, arg := range call.Arguments.Get(2).([]string) {
		line += " " + arg
	}
	return line
}
