package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"

	"celebrate/internal/platform/config"
)

func TestFeatures(t *testing.T) {
	t.Setenv("CELEBRATE_DB_URL", "")
	t.Setenv("CELEBRATE_REDIS_URL", "")
	t.Setenv("CELEBRATE_ADMIN_TOKEN", "e2e-admin")
	cfg, err := config.Load()
	require.NoError(t, err)

	suite := godog.TestSuite{
		Name: "celebrate",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			tc, err := NewTestContext(context.Background(), cfg)
			require.NoError(t, err)
			RegisterSteps(sc, tc)
			sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				tc.Close()
				return ctx, err
			})
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
