package e2e

import (
	"github.com/cucumber/godog"

	"celebrate/e2e/steps/celebration"
	"celebrate/e2e/steps/common"
)

// RegisterSteps registers all step definitions from the step packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	celebration.RegisterSteps(ctx, tc)
}
