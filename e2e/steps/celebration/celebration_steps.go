// Package celebration holds the pledge, donor and operator steps.
package celebration

import (
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario world these steps drive.
type TestContext interface {
	NewDonor() error
	AsDonor(method, path string, body any, headers map[string]string) error
	AsOperator(method, path string, body any) error
	Field(path string) (any, error)
	Status() int
	RememberCelebration(id string)
	CelebrationID() string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &steps{tc: tc}
	ctx.Step(`^a donor with a bearer token$`, s.aDonor)
	ctx.Step(`^the donor pledges (\d+) cents to "([^"]*)" in "([^"]*)" on bill "([^"]*)" with key "([^"]*)"$`, s.pledge)
	ctx.Step(`^the donor pauses the celebration$`, s.pause)
	ctx.Step(`^the donor resumes the celebration$`, s.resume)
	ctx.Step(`^the donor views the celebration$`, s.view)
	ctx.Step(`^the donor checks limits for "([^"]*)" in "([^"]*)"$`, s.limits)
	ctx.Step(`^an operator triggers bill "([^"]*)"$`, s.triggerBill)
	ctx.Step(`^an operator fails bill "([^"]*)"$`, s.failBill)
	ctx.Step(`^an operator marks the celebration defunct for "([^"]*)"$`, s.defunct)
	ctx.Step(`^the celebration status should be "([^"]*)"$`, s.statusShouldBe)
}

type steps struct {
	tc TestContext
}

func (s *steps) aDonor() error {
	return s.tc.NewDonor()
}

func (s *steps) pledge(cents int, candidate, state, bill, key string) error {
	body := map[string]any{
		"candidate_id":    candidate,
		"candidate_state": state,
		"bill_id":         bill,
		"amount_cents":    cents,
	}
	if err := s.tc.AsDonor(http.MethodPost, "/celebrations", body, map[string]string{"Idempotency-Key": key}); err != nil {
		return err
	}
	if st := s.tc.Status(); st == http.StatusCreated || st == http.StatusOK {
		id, err := s.tc.Field("id")
		if err != nil {
			return err
		}
		s.tc.RememberCelebration(fmt.Sprint(id))
	}
	return nil
}

func (s *steps) celebrationPath(suffix string) (string, error) {
	id := s.tc.CelebrationID()
	if id == "" {
		return "", fmt.Errorf("no celebration created in this scenario")
	}
	return "/celebrations/" + id + suffix, nil
}

func (s *steps) pause() error  { return s.donorPost("/pause") }
func (s *steps) resume() error { return s.donorPost("/resume") }

func (s *steps) donorPost(suffix string) error {
	path, err := s.celebrationPath(suffix)
	if err != nil {
		return err
	}
	return s.tc.AsDonor(http.MethodPost, path, nil, nil)
}

func (s *steps) view() error {
	path, err := s.celebrationPath("")
	if err != nil {
		return err
	}
	return s.tc.AsDonor(http.MethodGet, path, nil, nil)
}

func (s *steps) limits(candidate, state string) error {
	return s.tc.AsDonor(http.MethodGet, "/limits?candidate_id="+candidate+"&candidate_state="+state, nil, nil)
}

func (s *steps) triggerBill(bill string) error {
	return s.tc.AsOperator(http.MethodPost, "/internal/bills/"+bill+"/trigger", nil)
}

func (s *steps) failBill(bill string) error {
	return s.tc.AsOperator(http.MethodPost, "/internal/bills/"+bill+"/fail", nil)
}

func (s *steps) defunct(reason string) error {
	id := s.tc.CelebrationID()
	if id == "" {
		return fmt.Errorf("no celebration created in this scenario")
	}
	return s.tc.AsOperator(http.MethodPost, "/internal/celebrations/"+id+"/defunct", map[string]string{"reason": reason})
}

func (s *steps) statusShouldBe(want string) error {
	if err := s.view(); err != nil {
		return err
	}
	got, err := s.tc.Field("status")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected celebration status %q, got %q", want, got)
	}
	return nil
}
