// Package common holds response assertions shared by every feature.
package common

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario world the assertions need.
type TestContext interface {
	Status() int
	Body() []byte
	Field(path string) (any, error)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &steps{tc: tc}
	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, s.errorCodeShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, s.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, s.fieldShouldBeNumber)
	ctx.Step(`^the response field "([^"]*)" should have (\d+) entr(?:y|ies)$`, s.fieldShouldHaveLen)
}

type steps struct {
	tc TestContext
}

func (s *steps) statusShouldBe(want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.Body())
	}
	return nil
}

func (s *steps) errorCodeShouldBe(want string) error {
	return s.fieldShouldBe("error", want)
}

func (s *steps) fieldShouldBe(path, want string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, got)
	}
	return nil
}

func (s *steps) fieldShouldBeNumber(path string, want int) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok || int(n) != want {
		return fmt.Errorf("expected %s to be %d, got %v", path, want, v)
	}
	return nil
}

func (s *steps) fieldShouldHaveLen(path string, want int) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	var got int
	switch list := v.(type) {
	case []any:
		got = len(list)
	case nil:
		got = 0
	default:
		return fmt.Errorf("%s is not a list", path)
	}
	if got != want {
		return fmt.Errorf("expected %s to have %d entries, got %d", path, want, got)
	}
	return nil
}
